// Package twitch implements the parts of the Twitch API the bot uses.
package twitch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"golang.org/x/oauth2"
)

// Client holds the context for requests to the Twitch API.
type Client struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// ID is the application's client ID.
	ID string
}

// reqjson performs an HTTP request and decodes the response data as JSON.
// If body is not nil, it is encoded as the JSON request body.
// The response body is truncated to 2 MB.
// The returned string is the pagination cursor, if the response has one.
// A 204 response leaves u unmodified.
func reqjson[Resp any](ctx context.Context, client Client, tok *oauth2.Token, method, url string, body any, u *Resp) (string, error) {
	var rb io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("couldn't encode request body: %w", err)
		}
		rb = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rb)
	if err != nil {
		return "", fmt.Errorf("couldn't make request: %w", err)
	}
	req.Header.Set("Client-Id", client.ID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	b, status, err := client.do(req, tok)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK, http.StatusAccepted: // do nothing
	case http.StatusNoContent:
		return "", nil
	case http.StatusUnauthorized:
		return "", fmt.Errorf("request failed: %s (%w)", b, ErrNeedRefresh)
	default:
		return "", fmt.Errorf("request failed: %s (%d %s)", b, status, http.StatusText(status))
	}
	r := struct {
		Data       *Resp          `json:"data"`
		Pagination jsontext.Value `json:"pagination"`
	}{Data: u}
	if err := json.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("couldn't decode JSON response: %w", err)
	}
	return pagination(r.Pagination)
}

// do authorizes and sends a request and reads up to 2 MB of the response.
func (client Client) do(req *http.Request, tok *oauth2.Token) ([]byte, int, error) {
	tok.SetAuthHeader(req)
	hc := client.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't read response: %w", err)
	}
	return b, resp.StatusCode, nil
}

// pagination extracts the cursor from a pagination object.
func pagination(v jsontext.Value) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	var p struct {
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(v, &p); err != nil {
		return "", fmt.Errorf("couldn't decode pagination: %w", err)
	}
	return p.Cursor, nil
}

// apiurl creates an api.twitch.tv URL for the given endpoint and with the
// given URL parameters.
func apiurl(ep string, values url.Values) string {
	u, err := url.JoinPath("https://api.twitch.tv/", ep)
	if err != nil {
		panic("twitch: bad url join with " + ep)
	}
	if len(values) == 0 {
		return u
	}
	return u + "?" + values.Encode()
}
