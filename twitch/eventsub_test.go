package twitch

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/oauth2"
)

func TestSubscriptions(t *testing.T) {
	spy := apiresp(200, "get-eventsub-subscriptions.json")
	cl := Client{
		HTTP: &http.Client{Transport: spy},
	}
	tok := &oauth2.Token{AccessToken: "bocchi"}
	transport := SubscriptionTransport{
		Method:    "websocket",
		Session:   "AQoQexAWVYKSTIu4ec_2VAxyuhAB",
		Connected: "2020-11-10T20:08:33.12345678Z",
	}
	want := []Subscription{
		{
			ID:      "26b1c993-bfcf-44d9-b876-379dacafe75a",
			Status:  "enabled",
			Type:    "channel.follow",
			Version: "2",
			Condition: SubscriptionCondition{
				Broadcaster: "1234",
				Moderator:   "1234",
			},
			Created:   "2020-11-10T20:08:33.12345678Z",
			Transport: transport,
			Cost:      1,
		},
		{
			ID:      "35016908-41ff-33ce-7879-61b8dfc2ee16",
			Status:  "enabled",
			Type:    "channel.channel_points_custom_reward_redemption.add",
			Version: "1",
			Condition: SubscriptionCondition{
				Broadcaster: "1234",
			},
			Created:   "2020-11-10T14:32:18.730260295Z",
			Transport: transport,
			Cost:      0,
		},
	}
	var got []Subscription
	for s, err := range Subscriptions(context.Background(), cl, tok, "") {
		if err != nil {
			t.Error(err)
		}
		got = append(got, s)
	}
	if diff := cmp.Diff(got, want, cmpopts.IgnoreFields(SubscriptionCondition{}, "Extra")); diff != "" {
		t.Errorf("wrong result (+got/-want):\n%s", diff)
	}
}

func TestCreateSubscription(t *testing.T) {
	spy := apiresp(202, "create-eventsub-subscription.json")
	cl := Client{HTTP: &http.Client{Transport: spy}}
	tok := &oauth2.Token{AccessToken: "bocchi"}
	sub := Subscription{
		Type:    "channel.follow",
		Version: "2",
		Condition: SubscriptionCondition{
			Broadcaster: "1234",
			Moderator:   "1234",
		},
		Transport: SubscriptionTransport{
			Method:  "websocket",
			Session: "AQoQexAWVYKSTIu4ec_2VAxyuhAB",
		},
	}
	got, err := CreateSubscription(context.Background(), cl, tok, sub)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "f1c2a387-161a-49f9-a165-0f21d7a4e1c4" || got.Status != "enabled" {
		t.Errorf("wrong subscription %+v", got)
	}
	if m := spy.first().Method; m != "POST" {
		t.Errorf("wrong method %s", m)
	}
}
