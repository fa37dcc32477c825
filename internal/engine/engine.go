package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

// PendingSummary is the client-visible view of a pending action.
type PendingSummary struct {
	ActionType string                 `json:"actionType"`
	Params     map[string]interface{} `json:"params"`
	ExpiresAt  time.Time              `json:"expiresAt"`
}

// AssistantReply is the result of one chat turn.
type AssistantReply struct {
	ConversationID string          `json:"conversationId"`
	Text           string          `json:"text"`
	Pending        *PendingSummary `json:"pending,omitempty"`
}

// Options configures an Engine.
type Options struct {
	ConfidenceThreshold float64
	HistoryWindow       int
}

// Engine is the single entry point for chat turns. It serializes turns per
// conversation, drives the confirmation state machine and turns every
// failure path into a chat reply.
type Engine struct {
	store     store.Store
	resolver  Resolver
	registry  *Registry
	rules     *Rules
	executor  *Executor
	threshold float64
	window    int
	now       func() time.Time
	log       zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(s store.Store, resolver Resolver, registry *Registry, rules *Rules, executor *Executor, opts Options, log zerolog.Logger) *Engine {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 6
	}
	return &Engine{
		store:     s,
		resolver:  resolver,
		registry:  registry,
		rules:     rules,
		executor:  executor,
		threshold: opts.ConfidenceThreshold,
		window:    opts.HistoryWindow,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
		inFlight:  make(map[string]bool),
	}
}

// HandleMessage processes one user turn. An empty conversationID starts a
// new conversation. A turn arriving while another turn for the same
// conversation is still running is rejected with a wait reply and no side
// effects.
func (e *Engine) HandleMessage(ctx context.Context, conversationID string, user model.UserContext, text string) (*AssistantReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty message: %w", model.ErrValidation)
	}

	cv, err := e.loadOrCreate(ctx, conversationID, user, text)
	if err != nil {
		return nil, err
	}

	if !e.acquire(cv.ConversationID) {
		return &AssistantReply{
			ConversationID: cv.ConversationID,
			Text:           "I'm still working on your previous message. Give me a moment and try again.",
		}, nil
	}
	defer e.release(cv.ConversationID)

	if _, err := e.store.Messages().Append(ctx, &model.Message{
		ConversationID: cv.ConversationID,
		Role:           model.RoleUser,
		Content:        text,
	}); err != nil {
		return nil, err
	}

	replyText, pending, err := e.handleTurn(ctx, cv, user, text)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.Messages().Append(ctx, &model.Message{
		ConversationID: cv.ConversationID,
		Role:           model.RoleAssistant,
		Content:        replyText,
	}); err != nil {
		return nil, err
	}

	reply := &AssistantReply{ConversationID: cv.ConversationID, Text: replyText}
	if pending != nil {
		reply.Pending = &PendingSummary{ActionType: pending.Type, Params: pending.Params, ExpiresAt: pending.ExpiresAt}
	}
	return reply, nil
}

func (e *Engine) handleTurn(ctx context.Context, cv *model.Conversation, user model.UserContext, text string) (string, *model.PendingAction, error) {
	// Expiry is evaluated lazily, on the next touch of the conversation.
	expiredNote := ""
	if cv.Pending != nil && cv.Pending.Expired(e.now()) {
		if err := e.store.Conversations().SetPending(ctx, cv.ConversationID, nil); err != nil {
			return "", nil, err
		}
		expiredNote = fmt.Sprintf("Your pending %s expired unconfirmed, so I discarded it. ", actionNoun(cv.Pending.Type))
		cv.Pending = nil
	}

	switch classifyTurn(text) {
	case turnConfirm:
		if cv.Pending == nil {
			return expiredNote + "There's nothing awaiting confirmation right now.", nil, nil
		}
		return e.confirm(ctx, cv, user)
	case turnCancel:
		if cv.Pending == nil {
			return expiredNote + "There's nothing to cancel right now.", nil, nil
		}
		if err := e.store.Conversations().SetPending(ctx, cv.ConversationID, nil); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Okay, I've discarded the %s.", actionNoun(cv.Pending.Type)), nil, nil
	}

	return e.resolve(ctx, cv, user, expiredNote)
}

func (e *Engine) confirm(ctx context.Context, cv *model.Conversation, user model.UserContext) (string, *model.PendingAction, error) {
	p := cv.Pending
	// Cancellation is ineffective from here on; mark EXECUTING before the
	// mutation so a crash leaves an inspectable state.
	p.State = model.PendingExec
	if err := e.store.Conversations().SetPending(ctx, cv.ConversationID, p); err != nil {
		return "", nil, err
	}

	rec, err := e.executor.Execute(ctx, cv.ConversationID, p, user)
	if err != nil {
		return "", nil, err
	}
	if err := e.store.Conversations().SetPending(ctx, cv.ConversationID, nil); err != nil {
		return "", nil, err
	}
	if rec.Outcome == model.OutcomeFailed {
		return fmt.Sprintf("I couldn't complete the %s: %s", actionNoun(p.Type), rec.FailureReason), nil, nil
	}
	return successText(p, rec), nil, nil
}

func (e *Engine) resolve(ctx context.Context, cv *model.Conversation, user model.UserContext, expiredNote string) (string, *model.PendingAction, error) {
	history, err := e.store.Messages().List(ctx, model.ListMessagesRequest{
		ConversationID: cv.ConversationID,
		Limit:          e.window,
	})
	if err != nil {
		return "", nil, err
	}

	res, err := e.resolver.Resolve(ctx, history, user)
	if err != nil {
		e.log.Warn().Err(err).Str("conversation_id", cv.ConversationID).Msg("resolver failed")
		return expiredNote + "Sorry, I'm having trouble understanding right now. Please try again in a moment.", nil, nil
	}

	switch res.Kind {
	case ResolutionReply, ResolutionClarify:
		return expiredNote + res.Text, nil, nil
	case ResolutionAction:
		// fall through below
	default:
		return expiredNote + res.Text, nil, nil
	}

	c := res.Candidate
	if c == nil {
		return expiredNote + fallbackText(res.Text), nil, nil
	}

	// Conform gate: a candidate that does not match its schema never reaches
	// validation.
	params, err := e.registry.Conform(c)
	if err != nil {
		e.log.Debug().Err(err).Str("action_type", c.Type).Msg("candidate rejected by conform gate")
		return expiredNote + fallbackText(res.Text), nil, nil
	}

	if c.Confidence < e.threshold {
		return expiredNote + fmt.Sprintf("Just to be sure: did you want me to %s? Please restate the request with the details.", actionNoun(c.Type)), nil, nil
	}

	pending, reason, err := e.rules.Validate(ctx, c, params, user)
	if err != nil {
		return "", nil, err
	}
	if reason != "" {
		// Policy rejection leaves any prior pending action untouched.
		return expiredNote + reason, nil, nil
	}

	// A valid candidate silently supersedes whatever was pending before.
	if err := e.store.Conversations().SetPending(ctx, cv.ConversationID, pending); err != nil {
		return "", nil, err
	}
	return expiredNote + e.registry.ConfirmationPrompt(pending), pending, nil
}

func (e *Engine) loadOrCreate(ctx context.Context, conversationID string, user model.UserContext, text string) (*model.Conversation, error) {
	if conversationID == "" {
		return e.store.Conversations().Create(ctx, &model.Conversation{
			UserID: user.UserID,
			Title:  deriveTitle(text),
		})
	}
	cv, err := e.store.Conversations().Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if cv.UserID != user.UserID {
		return nil, model.ErrNotFound
	}
	if cv.Archived {
		return nil, fmt.Errorf("conversation is archived: %w", model.ErrValidation)
	}
	return cv, nil
}

func (e *Engine) acquire(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[conversationID] {
		return false
	}
	e.inFlight[conversationID] = true
	return true
}

func (e *Engine) release(conversationID string) {
	e.mu.Lock()
	delete(e.inFlight, conversationID)
	e.mu.Unlock()
}

func successText(p *model.PendingAction, rec *model.ExecutionRecord) string {
	switch p.Type {
	case ActionApplyLeave:
		return fmt.Sprintf("Done! Your %v leave from %v to %v has been submitted (reference %s).",
			p.Params["leave_type"], p.Params["start_date"], p.Params["end_date"], rec.EntityID)
	case ActionBookRoom:
		return fmt.Sprintf("Done! %v is booked for %q (reference %s).",
			p.Params["room_name"], p.Params["title"], rec.EntityID)
	case ActionSubmitClaim:
		return fmt.Sprintf("Done! Your %v claim for %.2f has been submitted (reference %s).",
			p.Params["category"], fnum(p.Params, "amount"), rec.EntityID)
	default:
		return "Done!"
	}
}

// deriveTitle uses the first few words of the opening message as the
// conversation title.
func deriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	if len(title) > 60 {
		title = title[:60]
	}
	return title
}

func fallbackText(text string) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	return "I couldn't map that to something I can do. I can apply for leave, book a meeting room, or submit an expense claim."
}

func fnum(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
