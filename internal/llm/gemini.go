package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/workmate-hq/workmate/internal/engine"
	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/policy"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com"
	defaultEmbedModel = "text-embedding-004"
)

// SnapshotProvider renders the user's current records for the prompt.
// Implemented by the domain services.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, user model.UserContext) (string, error)
}

// PolicySearcher retrieves handbook excerpts relevant to a query.
type PolicySearcher interface {
	Search(ctx context.Context, query string, k int) ([]*policy.Chunk, error)
}

// Client resolves user turns with the Gemini generateContent API. It rotates
// through the configured model list when a model is quota-exhausted or
// unavailable, and rotates API keys per request.
type Client struct {
	http       *resty.Client
	registry   *engine.Registry
	keys       []string
	models     []string
	embedModel string
	snapshot   SnapshotProvider
	policies   PolicySearcher
	log        zerolog.Logger

	mu       sync.Mutex
	modelIdx int
	keyIdx   int
}

// Options configures a Client. BaseURL is overridable for tests.
type Options struct {
	BaseURL    string
	Keys       []string
	Models     []string
	EmbedModel string
	Timeout    time.Duration
}

func New(opts Options, registry *engine.Registry, log zerolog.Logger) (*Client, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("at least one Gemini API key is required")
	}
	if len(opts.Models) == 0 {
		return nil, fmt.Errorf("at least one Gemini model is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	embedModel := opts.EmbedModel
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	httpc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{
		http:       httpc,
		registry:   registry,
		keys:       opts.Keys,
		models:     opts.Models,
		embedModel: embedModel,
		log:        log,
	}, nil
}

// SetKnowledge attaches the prompt-context sources. Either may be nil.
func (c *Client) SetKnowledge(snapshot SnapshotProvider, policies PolicySearcher) {
	c.snapshot = snapshot
	c.policies = policies
}

// Wire types for the generateContent API.

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
	GenerationConfig  genConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// payload is the strict JSON contract the model must produce.
type payload struct {
	Kind   string `json:"kind"` // reply | clarify | action
	Reply  string `json:"reply"`
	Action *struct {
		Type       string                 `json:"type"`
		Params     map[string]interface{} `json:"params"`
		Confidence float64                `json:"confidence"`
	} `json:"action"`
}

// Resolve implements engine.Resolver.
func (c *Client) Resolve(ctx context.Context, history []*model.Message, user model.UserContext) (*engine.Resolution, error) {
	sys := systemPrompt(c.registry, user)
	if grounding := c.grounding(ctx, history, user); grounding != "" {
		sys += "\n\n" + grounding
	}
	req := c.buildRequest(history, sys)

	var lastErr error
	for attempt := 0; attempt < len(c.models); attempt++ {
		modelName, key := c.pick()
		text, err := c.call(ctx, modelName, key, req)
		if err != nil {
			lastErr = err
			if isRotatable(err) {
				c.log.Warn().Err(err).Str("model", modelName).Msg("rotating gemini model")
				c.rotate()
				continue
			}
			return nil, err
		}
		return c.parse(text), nil
	}
	return nil, fmt.Errorf("all gemini models exhausted: %w", lastErr)
}

// grounding assembles the data snapshot and policy excerpts for the prompt.
// Retrieval failures degrade to an ungrounded prompt; a chat turn should not
// fail because context lookup did.
func (c *Client) grounding(ctx context.Context, history []*model.Message, user model.UserContext) string {
	var b strings.Builder
	if c.snapshot != nil {
		snap, err := c.snapshot.Snapshot(ctx, user)
		if err != nil {
			c.log.Warn().Err(err).Msg("snapshot unavailable for prompt")
		} else if snap != "" {
			b.WriteString("Current records for this user. These are authoritative; answer data questions from them, never guess:\n")
			b.WriteString(snap)
			b.WriteString("\n")
		}
	}
	if c.policies != nil {
		if query := lastUserMessage(history); query != "" {
			chunks, err := c.policies.Search(ctx, query, 3)
			if err != nil {
				c.log.Warn().Err(err).Msg("policy search unavailable for prompt")
			} else if len(chunks) > 0 {
				b.WriteString("\nRelevant company policy excerpts:\n")
				for _, ch := range chunks {
					fmt.Fprintf(&b, "### %s\n%s\n", ch.Title, ch.Text)
				}
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func lastUserMessage(history []*model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func (c *Client) buildRequest(history []*model.Message, sys string) *generateRequest {
	req := &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: sys}}},
		GenerationConfig:  genConfig{Temperature: 0.1, ResponseMimeType: "application/json"},
	}
	for _, m := range history {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return req
}

func (c *Client) call(ctx context.Context, modelName, key string, body *generateRequest) (string, error) {
	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", modelName))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = fmt.Sprintf("%s: %s", out.Error.Status, out.Error.Message)
		}
		return "", &apiError{status: resp.StatusCode(), msg: msg}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// parse maps the model's JSON payload to a Resolution. Anything that is not
// a well-formed payload degrades to a plain reply with the raw text; the
// conform gate downstream handles bad action params.
func (c *Client) parse(text string) *engine.Resolution {
	raw := stripFences(text)
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return &engine.Resolution{Kind: engine.ResolutionReply, Text: strings.TrimSpace(text)}
	}
	switch p.Kind {
	case "action":
		if p.Action == nil {
			return &engine.Resolution{Kind: engine.ResolutionReply, Text: fallback(p.Reply, text)}
		}
		return &engine.Resolution{
			Kind: engine.ResolutionAction,
			Text: p.Reply,
			Candidate: &model.CandidateAction{
				Type:       p.Action.Type,
				Params:     p.Action.Params,
				Confidence: p.Action.Confidence,
			},
		}
	case "clarify":
		return &engine.Resolution{Kind: engine.ResolutionClarify, Text: fallback(p.Reply, text)}
	default:
		return &engine.Resolution{Kind: engine.ResolutionReply, Text: fallback(p.Reply, text)}
	}
}

func (c *Client) pick() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	modelName := c.models[c.modelIdx%len(c.models)]
	key := c.keys[c.keyIdx%len(c.keys)]
	c.keyIdx++
	return modelName, key
}

func (c *Client) pickKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.keys[c.keyIdx%len(c.keys)]
	c.keyIdx++
	return key
}

func (c *Client) rotate() {
	c.mu.Lock()
	c.modelIdx++
	c.mu.Unlock()
}

type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return fmt.Sprintf("gemini api error %d: %s", e.status, e.msg) }

func isRotatable(err error) bool {
	ae, ok := err.(*apiError)
	if !ok {
		return false
	}
	if ae.status == 429 || ae.status == 404 {
		return true
	}
	return strings.Contains(ae.msg, "RESOURCE_EXHAUSTED") || strings.Contains(ae.msg, "quota")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func fallback(primary, alt string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return strings.TrimSpace(alt)
}

func systemPrompt(registry *engine.Registry, user model.UserContext) string {
	var b strings.Builder
	b.WriteString("You are Workmate, an employee self-service assistant. ")
	fmt.Fprintf(&b, "You are talking to %s. Today is %s.\n\n", user.DisplayName, time.Now().UTC().Format("2006-01-02 (Monday)"))
	b.WriteString("You can propose exactly these actions:\n")
	for _, s := range registry.Schemas() {
		fmt.Fprintf(&b, "- %s(", s.Type)
		for i, p := range s.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", p.Name, p.Type)
			if !p.Required {
				b.WriteString("?")
			}
		}
		b.WriteString(")\n")
	}
	b.WriteString(`
Dates are YYYY-MM-DD; datetimes are YYYY-MM-DD HH:MM in 24h time.

Respond with JSON only, one of:
{"kind":"reply","reply":"<conversational answer>"}
{"kind":"clarify","reply":"<question asking for the missing detail>"}
{"kind":"action","reply":"<one-line summary>","action":{"type":"<action type>","params":{...},"confidence":<0..1>}}

Use "action" only when the user clearly wants the action performed and every
required parameter is stated or unambiguous. Use "clarify" when details are
missing. Never invent parameter values.`)
	return b.String()
}
