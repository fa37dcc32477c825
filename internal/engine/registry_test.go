package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmate-hq/workmate/internal/model"
)

func TestConform_HappyPath(t *testing.T) {
	r := NewRegistry()

	params, err := r.Conform(&model.CandidateAction{
		Type: ActionApplyLeave,
		Params: map[string]interface{}{
			"leave_type": " Annual ",
			"start_date": "2026-09-07",
			"end_date":   "2026-09-09",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Annual", params["leave_type"])
	assert.Equal(t, "2026-09-07", params["start_date"])
	_, hasReason := params["reason"]
	assert.False(t, hasReason, "optional param should be absent when not provided")
}

func TestConform_NormalizesDatetimes(t *testing.T) {
	r := NewRegistry()

	params, err := r.Conform(&model.CandidateAction{
		Type: ActionBookRoom,
		Params: map[string]interface{}{
			"room_name":  "Mercury",
			"title":      "standup",
			"start_time": "2026-09-07 10:00",
			"end_time":   "2026-09-07T11:00",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-09-07T10:00:00Z", params["start_time"])
	assert.Equal(t, "2026-09-07T11:00:00Z", params["end_time"])
}

func TestConform_CoercesMoney(t *testing.T) {
	r := NewRegistry()

	for _, amount := range []interface{}{42.5, "42.5"} {
		params, err := r.Conform(&model.CandidateAction{
			Type: ActionSubmitClaim,
			Params: map[string]interface{}{
				"category":    "Meals",
				"amount":      amount,
				"description": "team lunch",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 42.5, params["amount"])
	}
}

func TestConform_FailsClosed(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		name      string
		candidate *model.CandidateAction
	}{
		{"unknown action type", &model.CandidateAction{Type: "delete_database", Params: map[string]interface{}{}}},
		{"missing required param", &model.CandidateAction{Type: ActionApplyLeave, Params: map[string]interface{}{
			"leave_type": "Annual", "start_date": "2026-09-07",
		}}},
		{"unknown extra param", &model.CandidateAction{Type: ActionApplyLeave, Params: map[string]interface{}{
			"leave_type": "Annual", "start_date": "2026-09-07", "end_date": "2026-09-09", "approver": "boss",
		}}},
		{"malformed date", &model.CandidateAction{Type: ActionApplyLeave, Params: map[string]interface{}{
			"leave_type": "Annual", "start_date": "next monday", "end_date": "2026-09-09",
		}}},
		{"empty string param", &model.CandidateAction{Type: ActionSubmitClaim, Params: map[string]interface{}{
			"category": "Meals", "amount": 10.0, "description": "  ",
		}}},
		{"non-numeric amount", &model.CandidateAction{Type: ActionSubmitClaim, Params: map[string]interface{}{
			"category": "Meals", "amount": "ten dollars", "description": "lunch",
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Conform(tc.candidate)
			assert.Error(t, err)
		})
	}
}

func TestClassifyTurn(t *testing.T) {
	cases := []struct {
		in   string
		want turnKind
	}{
		{"confirm", turnConfirm},
		{"CONFIRM", turnConfirm},
		{"  yes! ", turnConfirm},
		{"ok", turnConfirm},
		{"go ahead", turnConfirm},
		{"cancel", turnCancel},
		{"No.", turnCancel},
		{"never mind", turnCancel},
		{"confirm my leave tomorrow", turnFreeText},
		{"book a room", turnFreeText},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyTurn(tc.in), "input %q", tc.in)
	}
}
