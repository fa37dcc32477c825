package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/workmate-hq/workmate/internal/domain"
	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

// Executor runs confirmed actions exactly once per idempotency key.
// Concurrent in-process confirmations of the same key collapse into a single
// run via singleflight; across processes the store's unique constraint on the
// key makes losers converge on the winner's record.
type Executor struct {
	store    store.Store
	services *domain.Services
	log      zerolog.Logger
	group    singleflight.Group
}

func NewExecutor(s store.Store, services *domain.Services, log zerolog.Logger) *Executor {
	return &Executor{store: s, services: services, log: log}
}

// Execute runs the pending action and returns its execution record. If a
// record already exists for the key the stored outcome is returned without
// re-running the mutation.
func (e *Executor) Execute(ctx context.Context, conversationID string, p *model.PendingAction, user model.UserContext) (*model.ExecutionRecord, error) {
	v, err, _ := e.group.Do(p.IdempotencyKey, func() (interface{}, error) {
		return e.executeOnce(ctx, conversationID, p, user)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ExecutionRecord), nil
}

func (e *Executor) executeOnce(ctx context.Context, conversationID string, p *model.PendingAction, user model.UserContext) (*model.ExecutionRecord, error) {
	if rec, err := e.store.Executions().GetByKey(ctx, p.IdempotencyKey); err == nil {
		return rec, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	entityID, execErr := e.apply(ctx, p, user)

	rec := &model.ExecutionRecord{
		ConversationID: conversationID,
		UserID:         user.UserID,
		IdempotencyKey: p.IdempotencyKey,
		ActionType:     p.Type,
		Outcome:        model.OutcomeSucceeded,
		EntityID:       entityID,
	}
	if execErr != nil {
		de, ok := domain.AsError(execErr)
		if !ok {
			return nil, fmt.Errorf("execute %s: %w", p.Type, execErr)
		}
		rec.Outcome = model.OutcomeFailed
		rec.EntityID = ""
		rec.FailureReason = de.Msg
	}

	created, err := e.store.Executions().Create(ctx, rec)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			// Lost the insert race to a concurrent confirmation of the same
			// key; its record is the outcome.
			return e.store.Executions().GetByKey(ctx, p.IdempotencyKey)
		}
		return nil, err
	}
	e.log.Info().
		Str("conversation_id", conversationID).
		Str("action_type", p.Type).
		Str("outcome", created.Outcome).
		Str("entity_id", created.EntityID).
		Msg("action executed")
	return created, nil
}

func (e *Executor) apply(ctx context.Context, p *model.PendingAction, user model.UserContext) (string, error) {
	switch p.Type {
	case ActionApplyLeave:
		return e.services.ApplyLeave(ctx, p.Params, user)
	case ActionBookRoom:
		return e.services.BookRoom(ctx, p.Params, user)
	case ActionSubmitClaim:
		return e.services.SubmitClaim(ctx, p.Params, user)
	default:
		return "", fmt.Errorf("unknown action type %q: %w", p.Type, model.ErrNotFound)
	}
}
