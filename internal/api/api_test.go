package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmate-hq/workmate/internal/auth"
	"github.com/workmate-hq/workmate/internal/domain"
	"github.com/workmate-hq/workmate/internal/engine"
	"github.com/workmate-hq/workmate/internal/health"
	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
	"github.com/workmate-hq/workmate/internal/store/sqlite"
)

type staticResolver struct {
	res *engine.Resolution
}

func (s *staticResolver) Resolve(ctx context.Context, history []*model.Message, user model.UserContext) (*engine.Resolution, error) {
	return s.res, nil
}

type testServer struct {
	srv      *httptest.Server
	store    store.Store
	resolver *staticResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.Open(t.TempDir() + "/api.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)
	pinger := st.(health.HealthPinger)

	resolver := &staticResolver{res: &engine.Resolution{Kind: engine.ResolutionReply, Text: "hi there"}}
	registry := engine.NewRegistry()
	log := zerolog.Nop()
	services := domain.New(st, log)
	eng := engine.New(st, resolver, registry,
		engine.NewRules(st, 10*time.Minute),
		engine.NewExecutor(st, services, log),
		engine.Options{ConfidenceThreshold: 0.8, HistoryWindow: 6}, log)

	router := NewRouter(Deps{
		Store:      st,
		Engine:     eng,
		Services:   services,
		Authorizer: auth.NewMockAuthorizer(""),
		Health:     nil, // CheckHealth treats nil as healthy
		Pinger:     pinger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: st, resolver: resolver}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, authed bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+auth.LocalDevAPIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestChat_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/chat", map[string]string{"message": "hi"}, false)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChat_RoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/chat", map[string]string{"message": "hello"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reply engine.AssistantReply
	decode(t, resp, &reply)
	assert.Equal(t, "hi there", reply.Text)
	require.NotEmpty(t, reply.ConversationID)

	// Conversation shows up in the listing with both messages.
	resp = ts.do(t, "GET", "/api/chat/conversations", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Conversations []model.Conversation `json:"conversations"`
		Count         int                  `json:"count"`
	}
	decode(t, resp, &listing)
	require.Equal(t, 1, listing.Count)

	resp = ts.do(t, "GET", "/api/chat/conversations/"+reply.ConversationID, nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		Conversation model.Conversation `json:"conversation"`
		Messages     []model.Message    `json:"messages"`
	}
	decode(t, resp, &detail)
	assert.Len(t, detail.Messages, 2)
	assert.Equal(t, "hello", detail.Messages[0].Content)
}

func TestChat_ValidatesInput(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/chat", map[string]string{"message": ""}, true)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := ts.do(t, "POST", "/api/chat", map[string]string{"message": "hi", "conversationId": "not-a-uuid"}, true)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestChat_ArchiveEndsConversation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/chat", map[string]string{"message": "hello"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reply engine.AssistantReply
	decode(t, resp, &reply)

	resp = ts.do(t, "POST", "/api/chat/conversations/"+reply.ConversationID+"/archive", nil, true)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Chatting into an archived conversation is rejected.
	resp2 := ts.do(t, "POST", "/api/chat", map[string]string{
		"message": "hi again", "conversationId": reply.ConversationID,
	}, true)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestChat_ActionFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	cap := 150.0
	_, err := ts.store.Claims().CreateCategory(ctx, &model.ClaimCategory{Name: "Meals", MaxAmount: &cap})
	require.NoError(t, err)

	ts.resolver.res = &engine.Resolution{
		Kind: engine.ResolutionAction,
		Text: "submitting a claim",
		Candidate: &model.CandidateAction{
			Type: engine.ActionSubmitClaim,
			Params: map[string]interface{}{
				"category": "Meals", "amount": 25.0, "description": "lunch",
			},
			Confidence: 0.95,
		},
	}

	resp := ts.do(t, "POST", "/api/chat", map[string]string{"message": "claim my lunch"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reply engine.AssistantReply
	decode(t, resp, &reply)
	require.NotNil(t, reply.Pending)
	assert.Equal(t, engine.ActionSubmitClaim, reply.Pending.ActionType)

	resp = ts.do(t, "POST", "/api/chat", map[string]string{
		"message": "confirm", "conversationId": reply.ConversationID,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var confirmed engine.AssistantReply
	decode(t, resp, &confirmed)
	assert.Contains(t, confirmed.Text, "Done!")

	// The claim is visible through the read endpoint.
	resp = ts.do(t, "GET", "/api/claims", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claims struct {
		Claims []model.Claim `json:"claims"`
		Count  int           `json:"count"`
	}
	decode(t, resp, &claims)
	require.Equal(t, 1, claims.Count)
	assert.Equal(t, 25.0, claims.Claims[0].Amount)
}

func TestDomainReads(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	lt, err := ts.store.Leaves().CreateType(ctx, &model.LeaveType{Name: "Annual Leave", DefaultDays: 14})
	require.NoError(t, err)
	require.NoError(t, ts.store.Leaves().SetBalance(ctx, &model.LeaveBalance{
		UserID: "workmate-dev", LeaveTypeID: lt.LeaveTypeID, Year: time.Now().UTC().Year(), TotalDays: 14, UsedDays: 2,
	}))
	_, err = ts.store.Bookings().CreateRoom(ctx, &model.Room{Name: "Mercury", Capacity: 8})
	require.NoError(t, err)

	resp := ts.do(t, "GET", "/api/leaves/balance", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balances struct {
		Balances []domain.BalanceView `json:"balances"`
	}
	decode(t, resp, &balances)
	require.Len(t, balances.Balances, 1)
	assert.Equal(t, 12, balances.Balances[0].Remaining)

	resp = ts.do(t, "GET", "/api/rooms", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rooms struct {
		Rooms []model.Room `json:"rooms"`
		Count int          `json:"count"`
	}
	decode(t, resp, &rooms)
	assert.Equal(t, 1, rooms.Count)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/health", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])

	resp = ts.do(t, "GET", "/api/health/db", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dbBody map[string]interface{}
	decode(t, resp, &dbBody)
	assert.Equal(t, "healthy", dbBody["status"])
}
