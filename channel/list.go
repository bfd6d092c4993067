package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
)

// entry is an element of a channel list document.
type entry struct {
	Channel string `json:"channelId"`
}

// FetchList gets the list of channels to join from a channel list URL.
// The document is a JSON array of objects with a channelId naming each
// channel. Names are lowercased, blank and duplicate entries are dropped, and
// the result never has a leading '#'.
func FetchList(ctx context.Context, client *http.Client, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't make channel list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't get channel list: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("couldn't read channel list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("couldn't get channel list: %s", resp.Status)
	}
	var l []entry
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("couldn't decode channel list: %w", err)
	}
	return Merge(nil, namesOf(l)), nil
}

func namesOf(l []entry) []string {
	r := make([]string, 0, len(l))
	for _, e := range l {
		r = append(r, e.Channel)
	}
	return r
}

// Merge combines channel name lists in order, normalizing names and
// dropping blanks and duplicates.
func Merge(lists ...[]string) []string {
	var r []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, s := range l {
			s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			r = append(r, s)
		}
	}
	return r
}
