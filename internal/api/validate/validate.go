package validate

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxMessageLen bounds a single chat message.
const MaxMessageLen = 4000

// Message validates one inbound chat message.
func Message(v string) error {
	if v == "" {
		return fmt.Errorf("message is required")
	}
	if len(v) > MaxMessageLen {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLen)
	}
	return nil
}

// ConversationID validates an optional conversation id; empty means "start a
// new conversation".
func ConversationID(v string) error {
	if v == "" {
		return nil
	}
	if _, err := uuid.Parse(v); err != nil {
		return fmt.Errorf("invalid conversation id")
	}
	return nil
}

// NonEmpty validates a required string field.
func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
