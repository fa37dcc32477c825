package engine

import (
	"context"

	"github.com/workmate-hq/workmate/internal/model"
)

// ResolutionKind distinguishes what the resolver made of the user's turn.
type ResolutionKind string

const (
	// ResolutionReply is a plain conversational answer with no action.
	ResolutionReply ResolutionKind = "reply"
	// ResolutionAction proposes a candidate action for validation.
	ResolutionAction ResolutionKind = "action"
	// ResolutionClarify asks the user for missing or ambiguous details.
	ResolutionClarify ResolutionKind = "clarify"
)

// Resolution is the resolver's verdict on one user turn. Text is always set;
// for ResolutionAction it is the fallback reply used when the candidate is
// rejected downstream.
type Resolution struct {
	Kind      ResolutionKind
	Text      string
	Candidate *model.CandidateAction
}

// Resolver turns a windowed message history into a Resolution. The last
// history entry is the user's current message. Implementations must not
// retry internally on hard failure; the engine owns the fallback reply.
type Resolver interface {
	Resolve(ctx context.Context, history []*model.Message, user model.UserContext) (*Resolution, error)
}
