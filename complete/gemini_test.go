package complete_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"

	"github.com/profprotonn/protonbot/complete"
)

type fixedResponse struct {
	status int
	body   string
	// got records the last request.
	path, key string
	req       any
}

func (f *fixedResponse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.path = r.URL.Path
	f.key = r.Header.Get("X-Goog-Api-Key")
	b, _ := io.ReadAll(r.Body)
	json.Unmarshal(b, &f.req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	io.WriteString(w, f.body)
}

func TestComplete(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
		err    bool
		empty  bool
	}{
		{
			name:   "ok",
			status: 200,
			body:   `{"candidates":[{"content":{"role":"model","parts":[{"text":"It is "},{"text":"noon.\n"}]},"finishReason":"STOP"}]}`,
			want:   "It is noon.",
		},
		{
			name:   "no-candidates",
			status: 200,
			body:   `{"candidates":[]}`,
			err:    true,
			empty:  true,
		},
		{
			name:   "blank",
			status: 200,
			body:   `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`,
			err:    true,
			empty:  true,
		},
		{
			name:   "api-error",
			status: 400,
			body:   `{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`,
			err:    true,
		},
		{
			name:   "garbage",
			status: 502,
			body:   `<html>bad gateway</html>`,
			err:    true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := &fixedResponse{status: c.status, body: c.body}
			srv := httptest.NewServer(h)
			defer srv.Close()
			cl := complete.Client{HTTP: srv.Client(), Key: "kita", Base: srv.URL}
			got, err := cl.Complete(context.Background(), "what time is it")
			if (err != nil) != c.err {
				t.Fatalf("wrong error: %v", err)
			}
			if c.empty != errors.Is(err, complete.ErrEmpty) {
				t.Errorf("wrong empty error: %v", err)
			}
			if got != c.want {
				t.Errorf("wrong completion: want %q, got %q", c.want, got)
			}
			if want := "/v1beta/models/gemini-2.0-flash:generateContent"; h.path != want {
				t.Errorf("wrong path: want %q, got %q", want, h.path)
			}
			if h.key != "kita" {
				t.Errorf("wrong key %q", h.key)
			}
			want := map[string]any{
				"contents": []any{
					map[string]any{
						"role":  "user",
						"parts": []any{map[string]any{"text": "what time is it"}},
					},
				},
			}
			if diff := cmp.Diff(h.req, any(want)); diff != "" {
				t.Errorf("wrong request (+got/-want):\n%s", diff)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	got := complete.Prompt("what is a bocchi")
	want := "respond to the following question/query in less than 500 characters and do not use markdown: what is a bocchi"
	if got != want {
		t.Errorf("wrong prompt: want %q, got %q", want, got)
	}
}
