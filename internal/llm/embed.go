package llm

import (
	"context"
	"fmt"
)

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// EmbedText implements policy.Embedder via the embedContent API. Embedding
// uses a dedicated model and does not participate in chat model rotation.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	key := c.pickKey()
	var out embedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetBody(&embedRequest{
			Model:   "models/" + c.embedModel,
			Content: content{Parts: []part{{Text: text}}},
		}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:embedContent", c.embedModel))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = fmt.Sprintf("%s: %s", out.Error.Status, out.Error.Message)
		}
		return nil, &apiError{status: resp.StatusCode(), msg: msg}
	}
	if len(out.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding")
	}
	return out.Embedding.Values, nil
}
