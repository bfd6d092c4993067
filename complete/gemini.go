// Package complete answers chat questions with a generative language model.
package complete

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"
)

// DefaultModel is the model used when a client names none.
const DefaultModel = "gemini-2.0-flash"

// Client is a client for the Gemini generateContent API.
type Client struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Key is the API key.
	Key string
	// Model is the model name. If empty, DefaultModel is used.
	Model string
	// Base is the API base URL. If empty, the public Gemini endpoint is used.
	Base string
}

// ErrEmpty is returned when the model produces no text.
var ErrEmpty = errors.New("empty completion")

// Prompt builds the prompt for a chat question.
func Prompt(question string) string {
	return "respond to the following question/query in less than 500 characters and do not use markdown: " + question
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type request struct {
	Contents []content `json:"contents"`
}

type response struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) endpoint() string {
	base := c.Base
	if base == "" {
		base = "https://generativelanguage.googleapis.com/"
	}
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	u, err := url.JoinPath(base, "v1beta/models", model+":generateContent")
	if err != nil {
		panic("complete: bad url join with " + base)
	}
	return u
}

// Complete sends a prompt to the model and returns the text of the first
// candidate. The response body is truncated to 1 MB.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body := request{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
	b, err := json.Marshal(&body)
	if err != nil {
		return "", fmt.Errorf("couldn't encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(), bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("couldn't make completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.Key)
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't get completion: %w", err)
	}
	b, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("couldn't read completion: %w", err)
	}
	var r response
	if err := json.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("couldn't decode completion (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		if r.Error != nil {
			return "", fmt.Errorf("completion failed: %s (%s)", r.Error.Message, resp.Status)
		}
		return "", fmt.Errorf("completion failed: %s", resp.Status)
	}
	if len(r.Candidates) == 0 {
		return "", ErrEmpty
	}
	var s strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		s.WriteString(p.Text)
	}
	t := strings.TrimSpace(s.String())
	if t == "" {
		return "", ErrEmpty
	}
	return t, nil
}
