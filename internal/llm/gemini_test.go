package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmate-hq/workmate/internal/engine"
	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/policy"
)

func geminiStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func candidateBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"role":  "model",
				"parts": []map[string]string{{"text": text}},
			}},
		},
	})
	return string(b)
}

func newClient(t *testing.T, baseURL string, models ...string) *Client {
	t.Helper()
	if len(models) == 0 {
		models = []string{"gemini-2.5-flash"}
	}
	c, err := New(Options{
		BaseURL: baseURL,
		Keys:    []string{"test-key"},
		Models:  models,
		Timeout: 5 * time.Second,
	}, engine.NewRegistry(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func testHistory(text string) []*model.Message {
	return []*model.Message{{Role: model.RoleUser, Content: text}}
}

var testUser = model.UserContext{UserID: "u1", DisplayName: "Pat"}

func TestResolve_ActionPayload(t *testing.T) {
	payload := `{"kind":"action","reply":"Applying for leave","action":{"type":"apply_leave","params":{"leave_type":"Annual","start_date":"2026-09-07","end_date":"2026-09-09"},"confidence":0.93}}`
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(candidateBody(payload)))
	})

	res, err := newClient(t, srv.URL).Resolve(context.Background(), testHistory("3 days off"), testUser)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionAction, res.Kind)
	require.NotNil(t, res.Candidate)
	assert.Equal(t, "apply_leave", res.Candidate.Type)
	assert.Equal(t, 0.93, res.Candidate.Confidence)
	assert.Equal(t, "Annual", res.Candidate.Params["leave_type"])
}

func TestResolve_FencedJSONAccepted(t *testing.T) {
	payload := "```json\n{\"kind\":\"clarify\",\"reply\":\"Which dates?\"}\n```"
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(candidateBody(payload)))
	})

	res, err := newClient(t, srv.URL).Resolve(context.Background(), testHistory("leave please"), testUser)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionClarify, res.Kind)
	assert.Equal(t, "Which dates?", res.Text)
}

func TestResolve_NonJSONDegradesToReply(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(candidateBody("Sure, happy to help with that!")))
	})

	res, err := newClient(t, srv.URL).Resolve(context.Background(), testHistory("hi"), testUser)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionReply, res.Kind)
	assert.Equal(t, "Sure, happy to help with that!", res.Text)
}

func TestResolve_RotatesModelOnQuota(t *testing.T) {
	var mu sync.Mutex
	var models []string
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":generateContent")
		mu.Lock()
		models = append(models, name)
		n := len(models)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`))
			return
		}
		_, _ = w.Write([]byte(candidateBody(`{"kind":"reply","reply":"hello"}`)))
	})

	c := newClient(t, srv.URL, "model-a", "model-b")
	res, err := c.Resolve(context.Background(), testHistory("hi"), testUser)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, []string{"model-a", "model-b"}, models)
}

func TestResolve_AllModelsExhausted(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`))
	})

	_, err := newClient(t, srv.URL, "model-a", "model-b").Resolve(context.Background(), testHistory("hi"), testUser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestResolve_HardErrorNotRotated(t *testing.T) {
	var calls int
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad request"}}`))
	})

	_, err := newClient(t, srv.URL, "model-a", "model-b").Resolve(context.Background(), testHistory("hi"), testUser)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type stubSnapshot struct {
	text string
	err  error
}

func (s stubSnapshot) Snapshot(ctx context.Context, user model.UserContext) (string, error) {
	return s.text, s.err
}

type stubPolicies struct {
	query  string
	chunks []*policy.Chunk
}

func (s *stubPolicies) Search(ctx context.Context, query string, k int) ([]*policy.Chunk, error) {
	s.query = query
	return s.chunks, nil
}

func TestResolve_PromptCarriesSnapshotAndPolicies(t *testing.T) {
	var sys string
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		sys = req.SystemInstruction.Parts[0].Text
		_, _ = w.Write([]byte(candidateBody(`{"kind":"reply","reply":"you have 11 days left"}`)))
	})

	c := newClient(t, srv.URL)
	policies := &stubPolicies{chunks: []*policy.Chunk{
		{Title: "Annual leave", Text: "14 days per calendar year."},
	}}
	c.SetKnowledge(stubSnapshot{text: "Leave balances:\n- Annual 2026: 11 day(s) remaining of 14"}, policies)

	_, err := c.Resolve(context.Background(), testHistory("how much annual leave do I have left?"), testUser)
	require.NoError(t, err)

	assert.Contains(t, sys, "11 day(s) remaining")
	assert.Contains(t, sys, "Annual leave")
	assert.Contains(t, sys, "14 days per calendar year")
	assert.Equal(t, "how much annual leave do I have left?", policies.query)
}

func TestResolve_SnapshotFailureDegradesToUngrounded(t *testing.T) {
	var sys string
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sys = req.SystemInstruction.Parts[0].Text
		_, _ = w.Write([]byte(candidateBody(`{"kind":"reply","reply":"hello"}`)))
	})

	c := newClient(t, srv.URL)
	c.SetKnowledge(stubSnapshot{err: context.DeadlineExceeded}, nil)

	res, err := c.Resolve(context.Background(), testHistory("hi"), testUser)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.NotContains(t, sys, "Current records")
}

func TestEmbedText(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "text-embedding-004:embedContent")
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "models/text-embedding-004", req.Model)
		assert.Equal(t, "annual leave", req.Content.Parts[0].Text)
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	})

	vec, err := newClient(t, srv.URL).EmbedText(context.Background(), "annual leave")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestEmbedText_APIError(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"status":"PERMISSION_DENIED","message":"key invalid"}}`))
	})

	_, err := newClient(t, srv.URL).EmbedText(context.Background(), "annual leave")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}

func TestHealthPing(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}]}`))
	})

	assert.NoError(t, newClient(t, srv.URL).HealthPing(context.Background()))
}

func TestHealthPing_Unavailable(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"status":"UNAVAILABLE","message":"backend down"}}`))
	})

	assert.Error(t, newClient(t, srv.URL).HealthPing(context.Background()))
}

func TestNew_RequiresKeysAndModels(t *testing.T) {
	_, err := New(Options{Models: []string{"m"}}, engine.NewRegistry(), zerolog.Nop())
	assert.Error(t, err)
	_, err = New(Options{Keys: []string{"k"}}, engine.NewRegistry(), zerolog.Nop())
	assert.Error(t, err)
}
