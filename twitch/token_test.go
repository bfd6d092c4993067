package twitch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

func TestValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		spy := apiresp(200, "validate.json")
		cl := Client{HTTP: &http.Client{Transport: spy}}
		tok := &oauth2.Token{AccessToken: "bocchi"}
		v, err := Validate(context.Background(), cl, tok)
		if err != nil {
			t.Fatal(err)
		}
		if v.Login != "twitchdev" || v.UserID != "141981764" {
			t.Errorf("wrong validation %+v", v)
		}
		if got := spy.first().Header.Get("Authorization"); got != "Bearer bocchi" {
			t.Errorf("wrong authorization %q", got)
		}
		if exp := time.Until(v.Expiry()); exp < 5520000*time.Second || exp > 5520838*time.Second {
			t.Errorf("wrong expiry: %v from now", exp)
		}
		want := []string{"moderator:manage:banned_users"}
		if diff := cmp.Diff(v.Missing([]string{"chat:read", "moderator:manage:banned_users"}), want); diff != "" {
			t.Errorf("wrong missing scopes (+got/-want):\n%s", diff)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		spy := apiresp(401, "invalid.json")
		cl := Client{HTTP: &http.Client{Transport: spy}}
		tok := &oauth2.Token{AccessToken: "bocchi"}
		v, err := Validate(context.Background(), cl, tok)
		if !errors.Is(err, ErrNeedRefresh) {
			t.Errorf("wrong error: %v", err)
		}
		if v == nil || v.Message != "invalid access token" {
			t.Errorf("wrong validation %+v", v)
		}
	})
}

func TestValidationExpiry(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   int
		want time.Time
	}{
		{"hour", 3600, at.Add(time.Hour)},
		{"app", 0, time.Time{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := Validation{ExpiresIn: c.in, at: at}
			if got := v.Expiry(); !got.Equal(c.want) {
				t.Errorf("wrong expiry: want %v, got %v", c.want, got)
			}
		})
	}
}
