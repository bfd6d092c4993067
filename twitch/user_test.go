package twitch

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

func TestUsersByLogin(t *testing.T) {
	spy := apiresp(200, "users.json")
	cl := Client{HTTP: &http.Client{Transport: spy}}
	tok := &oauth2.Token{AccessToken: "bocchi"}
	u, err := UsersByLogin(context.Background(), cl, tok, "twitchdev", "nobody")
	if err != nil {
		t.Error(err)
	}
	if got := spy.first().URL.Query()["login"]; !cmp.Equal(got, []string{"twitchdev", "nobody"}) {
		t.Errorf("wrong logins in query: %q", got)
	}
	if len(u) != 1 {
		t.Fatalf("wrong number of results: want 1, got %d", len(u))
	}
	want := User{
		ID:              "141981764",
		Login:           "twitchdev",
		DisplayName:     "TwitchDev",
		BroadcasterType: "partner",
		CreatedAt:       "2016-12-14T20:32:28Z",
	}
	if diff := cmp.Diff(u[0], want); diff != "" {
		t.Errorf("wrong result (+got/-want):\n%s", diff)
	}
}

func TestUsersNone(t *testing.T) {
	spy := apiresp(200)
	cl := Client{HTTP: &http.Client{Transport: spy}}
	u, err := UsersByLogin(context.Background(), cl, &oauth2.Token{AccessToken: "bocchi"})
	if err != nil || len(u) != 0 {
		t.Errorf("wrong result for no users: %v %v", u, err)
	}
	if len(spy.got) != 0 {
		t.Errorf("made %d requests", len(spy.got))
	}
}

func TestUsersTooMany(t *testing.T) {
	spy := apiresp(200)
	cl := Client{HTTP: &http.Client{Transport: spy}}
	tok := &oauth2.Token{AccessToken: "bocchi"}
	names := make([]string, MaxUsers+1)
	if _, err := UsersByLogin(context.Background(), cl, tok, names...); err == nil {
		t.Error("no error for 101 users")
	}
	if len(spy.got) != 0 {
		t.Errorf("made %d requests", len(spy.got))
	}
}
