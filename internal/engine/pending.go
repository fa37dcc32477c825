package engine

import "strings"

// The pending-action lifecycle per conversation:
//
//	NONE -> AWAITING_CONFIRMATION  (rules accept a candidate)
//	AWAITING_CONFIRMATION -> EXECUTING -> cleared  (user confirms)
//	AWAITING_CONFIRMATION -> cleared  (cancel, expiry, or supersession)
//
// The cleared states are terminal; the conversation returns to NONE. Expiry
// is evaluated lazily when the conversation is next touched, and a new valid
// candidate silently replaces whatever was awaiting confirmation.

// Confirmation vocabulary, matched case-insensitively after trimming
// punctuation. Anything else flows to the resolver.
var (
	confirmWords = map[string]bool{
		"confirm": true, "confirmed": true, "yes": true, "y": true,
		"yes please": true, "go ahead": true, "do it": true, "ok": true, "okay": true,
	}
	cancelWords = map[string]bool{
		"cancel": true, "no": true, "n": true, "stop": true, "abort": true,
		"never mind": true, "nevermind": true, "discard": true,
	}
)

type turnKind int

const (
	turnFreeText turnKind = iota
	turnConfirm
	turnCancel
)

func classifyTurn(text string) turnKind {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Trim(norm, ".!?, ")
	if confirmWords[norm] {
		return turnConfirm
	}
	if cancelWords[norm] {
		return turnCancel
	}
	return turnFreeText
}

func actionNoun(actionType string) string {
	switch actionType {
	case ActionApplyLeave:
		return "leave request"
	case ActionBookRoom:
		return "room booking"
	case ActionSubmitClaim:
		return "expense claim"
	default:
		return "request"
	}
}
