package channel_test

import (
	"context"
	"testing"

	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"

	"github.com/profprotonn/protonbot/channel"
	"github.com/profprotonn/protonbot/message"
)

func TestThank(t *testing.T) {
	var got []message.Sent
	ch := channel.Channel{
		Name:    "#kessoku",
		Message: func(ctx context.Context, msg message.Sent) { got = append(got, msg) },
		Rate:    rate.NewLimiter(0, 1),
		Thanks:  true,
		Emotes:  pick.New(pick.FromMap(map[string]int{"BocchiPanic": 1})),
	}
	if ch.Login() != "kessoku" {
		t.Errorf("wrong login %q", ch.Login())
	}
	if !ch.Thank(context.Background(), "Thanks for the raid!") {
		t.Error("first thanks dropped")
	}
	if ch.Thank(context.Background(), "Thanks for the raid!") {
		t.Error("rate limit didn't drop second thanks")
	}
	want := []message.Sent{{To: "#kessoku", Text: "Thanks for the raid! BocchiPanic"}}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("wrong messages: want %+v, got %+v", want, got)
	}

	ch.Thanks = false
	ch.Rate = nil
	if ch.Thank(context.Background(), "Thanks!") {
		t.Error("thanked with thanks disabled")
	}
}
