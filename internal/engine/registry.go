package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/workmate-hq/workmate/internal/model"
)

// ParamType enumerates the value kinds an action parameter may take.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamDate     ParamType = "date"     // YYYY-MM-DD
	ParamDateTime ParamType = "datetime" // RFC3339 or "YYYY-MM-DD HH:MM"
	ParamMoney    ParamType = "money"    // decimal amount
)

// ParamSpec describes one parameter of an action schema.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
}

// ActionSchema is one entry in the closed action catalog.
type ActionSchema struct {
	Type   string
	Params []ParamSpec
}

// Registry is the static action catalog. The set is fixed at construction;
// nothing registers actions at runtime.
type Registry struct {
	schemas map[string]*ActionSchema
}

// Action types.
const (
	ActionApplyLeave  = "apply_leave"
	ActionBookRoom    = "book_room"
	ActionSubmitClaim = "submit_claim"
)

func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]*ActionSchema)}
	for _, s := range []*ActionSchema{
		{
			Type: ActionApplyLeave,
			Params: []ParamSpec{
				{Name: "leave_type", Type: ParamString, Required: true},
				{Name: "start_date", Type: ParamDate, Required: true},
				{Name: "end_date", Type: ParamDate, Required: true},
				{Name: "reason", Type: ParamString},
			},
		},
		{
			Type: ActionBookRoom,
			Params: []ParamSpec{
				{Name: "room_name", Type: ParamString, Required: true},
				{Name: "title", Type: ParamString, Required: true},
				{Name: "start_time", Type: ParamDateTime, Required: true},
				{Name: "end_time", Type: ParamDateTime, Required: true},
				{Name: "description", Type: ParamString},
			},
		},
		{
			Type: ActionSubmitClaim,
			Params: []ParamSpec{
				{Name: "category", Type: ParamString, Required: true},
				{Name: "amount", Type: ParamMoney, Required: true},
				{Name: "description", Type: ParamString, Required: true},
				{Name: "claim_date", Type: ParamDate},
			},
		},
	} {
		r.schemas[s.Type] = s
	}
	return r
}

// Lookup returns the schema for an action type.
func (r *Registry) Lookup(actionType string) (*ActionSchema, error) {
	s, ok := r.schemas[actionType]
	if !ok {
		return nil, fmt.Errorf("unknown action type %q: %w", actionType, model.ErrNotFound)
	}
	return s, nil
}

// Schemas returns the catalog in a stable order, for prompt construction.
func (r *Registry) Schemas() []*ActionSchema {
	return []*ActionSchema{
		r.schemas[ActionApplyLeave],
		r.schemas[ActionBookRoom],
		r.schemas[ActionSubmitClaim],
	}
}

// Conform checks a candidate against its schema and returns a normalized
// parameter map. It fails closed: unknown action types, unknown extra
// params, missing required params, and unparseable values are all rejected.
func (r *Registry) Conform(c *model.CandidateAction) (map[string]interface{}, error) {
	schema, err := r.Lookup(c.Type)
	if err != nil {
		return nil, err
	}
	specs := make(map[string]ParamSpec, len(schema.Params))
	for _, p := range schema.Params {
		specs[p.Name] = p
	}
	for name := range c.Params {
		if _, ok := specs[name]; !ok {
			return nil, fmt.Errorf("%s: unknown parameter %q: %w", c.Type, name, model.ErrValidation)
		}
	}
	out := make(map[string]interface{}, len(c.Params))
	for _, spec := range schema.Params {
		raw, ok := c.Params[spec.Name]
		if !ok || raw == nil {
			if spec.Required {
				return nil, fmt.Errorf("%s: missing required parameter %q: %w", c.Type, spec.Name, model.ErrValidation)
			}
			continue
		}
		v, err := coerceParam(spec.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %q: %v: %w", c.Type, spec.Name, err, model.ErrValidation)
		}
		out[spec.Name] = v
	}
	return out, nil
}

func coerceParam(t ParamType, raw interface{}) (interface{}, error) {
	switch t {
	case ParamString:
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("expected non-empty string, got %T", raw)
		}
		return strings.TrimSpace(s), nil
	case ParamDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected YYYY-MM-DD string, got %T", raw)
		}
		d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return d.Format("2006-01-02"), nil
	case ParamDateTime:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected datetime string, got %T", raw)
		}
		ts, err := parseDateTime(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		return ts.Format(time.RFC3339), nil
	case ParamMoney:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid amount %q", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected amount, got %T", raw)
		}
	default:
		return nil, fmt.Errorf("unhandled param type %q", t)
	}
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// ConfirmationPrompt renders the summary the user must confirm before an
// action executes.
func (r *Registry) ConfirmationPrompt(p *model.PendingAction) string {
	params := p.Params
	switch p.Type {
	case ActionApplyLeave:
		return fmt.Sprintf("You'd like to apply for %v leave from %v to %v (%v day(s)). Reply \"confirm\" to submit or \"cancel\" to discard.",
			params["leave_type"], params["start_date"], params["end_date"], params["total_days"])
	case ActionBookRoom:
		return fmt.Sprintf("You'd like to book %v for %q from %v to %v. Reply \"confirm\" to book or \"cancel\" to discard.",
			params["room_name"], params["title"], params["start_time"], params["end_time"])
	case ActionSubmitClaim:
		return fmt.Sprintf("You'd like to submit a %v claim for %.2f (%v). Reply \"confirm\" to submit or \"cancel\" to discard.",
			params["category"], params["amount"], params["description"])
	default:
		return "Reply \"confirm\" to proceed or \"cancel\" to discard."
	}
}
