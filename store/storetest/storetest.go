// Package storetest provides integration testing facilities for command stores.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/profprotonn/protonbot/store"
)

// Test runs the integration test suite against stores produced by new.
//
// If a store cannot be created without error, new should call t.Fatal.
func Test(ctx context.Context, t *testing.T, new func(context.Context) store.Store) {
	t.Run("upsert", testUpsert(ctx, new(ctx)))
	t.Run("find", testFind(ctx, new(ctx)))
	t.Run("list", testList(ctx, new(ctx)))
	t.Run("delete", testDelete(ctx, new(ctx)))
	t.Run("update", testUpdate(ctx, new(ctx)))
	t.Run("concurrent", testConcurrent(ctx, new(ctx)))
}

var ignoreID = cmpopts.IgnoreFields(store.Command{}, "ID")

func testUpsert(ctx context.Context, s store.Store) func(t *testing.T) {
	return func(t *testing.T) {
		defer s.Close()
		a, err := s.Upsert(ctx, "#Kessoku", "Bocchi", "guitar hero", false)
		if err != nil {
			t.Fatalf("couldn't insert: %v", err)
		}
		want := store.Command{Channel: "kessoku", Trigger: "bocchi", Response: "guitar hero"}
		if diff := cmp.Diff(*a, want, ignoreID); diff != "" {
			t.Errorf("wrong inserted command (+got/-want):\n%s", diff)
		}
		if a.ID == "" {
			t.Error("inserted command has no id")
		}
		b, err := s.Upsert(ctx, "kessoku", "BOCCHI", "lead guitar", true)
		if err != nil {
			t.Fatalf("couldn't update: %v", err)
		}
		want = store.Command{ID: a.ID, Channel: "kessoku", Trigger: "bocchi", Response: "lead guitar", RequiresMod: true}
		if diff := cmp.Diff(*b, want); diff != "" {
			t.Errorf("wrong updated command (+got/-want):\n%s", diff)
		}
		l, err := s.ListByChannel(ctx, "kessoku")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(l, []store.Command{want}); diff != "" {
			t.Errorf("upsert duplicated a command (+got/-want):\n%s", diff)
		}
		if _, err := s.Upsert(ctx, "kessoku", " ", "nothing", false); !errors.Is(err, store.ErrMissing) {
			t.Errorf("wrong error for blank trigger: %v", err)
		}
		if _, err := s.Upsert(ctx, "a\x00b", "c", "nothing", false); !errors.Is(err, store.ErrInvalid) {
			t.Errorf("wrong error for control character in channel: %v", err)
		}
		if _, err := s.Upsert(ctx, "a", "b\x00c", "nothing", false); !errors.Is(err, store.ErrInvalid) {
			t.Errorf("wrong error for control character in trigger: %v", err)
		}
		c, err := s.Upsert(ctx, "kessoku", "time", "Noon.\r\nPRIVMSG #otherchannel :injected", false)
		if err != nil {
			t.Fatalf("couldn't insert multiline response: %v", err)
		}
		if want := "Noon. PRIVMSG #otherchannel :injected"; c.Response != want {
			t.Errorf("wrong response: want %q, got %q", want, c.Response)
		}
	}
}

func testFind(ctx context.Context, s store.Store) func(t *testing.T) {
	return func(t *testing.T) {
		defer s.Close()
		if _, err := s.Upsert(ctx, "kessoku", "bocchi", "guitar hero", false); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Upsert(ctx, "sickhack", "bocchi", "who?", false); err != nil {
			t.Fatal(err)
		}
		cases := []struct {
			name    string
			channel string
			trigger string
			want    string
			err     error
		}{
			{"exact", "kessoku", "bocchi", "guitar hero", nil},
			{"case", "#KESSOKU", "Bocchi", "guitar hero", nil},
			{"other-channel", "sickhack", "bocchi", "who?", nil},
			{"missing-trigger", "kessoku", "kita", "", store.ErrNotFound},
			{"missing-channel", "starry", "bocchi", "", store.ErrNotFound},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				got, err := s.FindOne(ctx, c.channel, c.trigger)
				if !errors.Is(err, c.err) {
					t.Fatalf("wrong error: want %v, got %v", c.err, err)
				}
				if c.err != nil {
					return
				}
				if got.Response != c.want {
					t.Errorf("wrong response: want %q, got %q", c.want, got.Response)
				}
			})
		}
	}
}

func testList(ctx context.Context, s store.Store) func(t *testing.T) {
	return func(t *testing.T) {
		defer s.Close()
		for _, c := range []store.Command{
			{Channel: "kessoku", Trigger: "ryo", Response: "bass"},
			{Channel: "kessoku", Trigger: "bocchi", Response: "guitar"},
			{Channel: "sickhack", Trigger: "kikuri", Response: "bass"},
			{Channel: "kessoku", Trigger: "nijika", Response: "drums", RequiresMod: true},
		} {
			if _, err := s.Upsert(ctx, c.Channel, c.Trigger, c.Response, c.RequiresMod); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.ListByChannel(ctx, "#Kessoku")
		if err != nil {
			t.Fatal(err)
		}
		want := []store.Command{
			{Channel: "kessoku", Trigger: "bocchi", Response: "guitar"},
			{Channel: "kessoku", Trigger: "nijika", Response: "drums", RequiresMod: true},
			{Channel: "kessoku", Trigger: "ryo", Response: "bass"},
		}
		if diff := cmp.Diff(got, want, ignoreID); diff != "" {
			t.Errorf("wrong list (+got/-want):\n%s", diff)
		}
		got, err = s.ListByChannel(ctx, "starry")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("unknown channel has commands: %v", got)
		}
	}
}

func testDelete(ctx context.Context, s store.Store) func(t *testing.T) {
	return func(t *testing.T) {
		defer s.Close()
		a, err := s.Upsert(ctx, "kessoku", "bocchi", "guitar hero", false)
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.DeleteByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("couldn't delete: %v", err)
		}
		if diff := cmp.Diff(got, a); diff != "" {
			t.Errorf("wrong deleted command (+got/-want):\n%s", diff)
		}
		if _, err := s.FindOne(ctx, "kessoku", "bocchi"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("deleted command still found: %v", err)
		}
		if _, err := s.DeleteByID(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("wrong error deleting twice: %v", err)
		}
		// The pair is free again.
		b, err := s.Upsert(ctx, "kessoku", "bocchi", "guitar hero", false)
		if err != nil {
			t.Fatal(err)
		}
		if b.ID == a.ID {
			t.Errorf("reinserted command reused id %q", a.ID)
		}
	}
}

func testUpdate(ctx context.Context, s store.Store) func(t *testing.T) {
	return func(t *testing.T) {
		defer s.Close()
		a, err := s.Upsert(ctx, "kessoku", "bocchi", "guitar hero", false)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Upsert(ctx, "kessoku", "kita", "guitar", false); err != nil {
			t.Fatal(err)
		}
		resp := "lead guitar"
		yes := true
		got, err := s.UpdateByID(ctx, a.ID, store.Patch{Response: &resp, RequiresMod: &yes})
		if err != nil {
			t.Fatalf("couldn't update: %v", err)
		}
		want := store.Command{ID: a.ID, Channel: "kessoku", Trigger: "bocchi", Response: "lead guitar", RequiresMod: true}
		if diff := cmp.Diff(*got, want); diff != "" {
			t.Errorf("wrong updated command (+got/-want):\n%s", diff)
		}
		found, err := s.FindOne(ctx, "kessoku", "bocchi")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(*found, want); diff != "" {
			t.Errorf("wrong stored command (+got/-want):\n%s", diff)
		}

		trig := "Hitori"
		got, err = s.UpdateByID(ctx, a.ID, store.Patch{Trigger: &trig})
		if err != nil {
			t.Fatalf("couldn't rename: %v", err)
		}
		if got.Trigger != "hitori" {
			t.Errorf("wrong trigger after rename: %q", got.Trigger)
		}
		if _, err := s.FindOne(ctx, "kessoku", "bocchi"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("old trigger still found: %v", err)
		}

		kita := "KITA"
		if _, err := s.UpdateByID(ctx, a.ID, store.Patch{Trigger: &kita}); !errors.Is(err, store.ErrDuplicate) {
			t.Errorf("wrong error for colliding rename: %v", err)
		}
		if _, err := s.UpdateByID(ctx, "no-such-id", store.Patch{Response: &resp}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("wrong error for unknown id: %v", err)
		}
	}
}

func testConcurrent(ctx context.Context, s store.Store) func(t *testing.T) {
	return func(t *testing.T) {
		defer s.Close()
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp := "response"
				if i%2 == 0 {
					resp = "other response"
				}
				// Writers may conflict and fail, but never duplicate.
				s.Upsert(ctx, "kessoku", "bocchi", resp, false)
			}()
		}
		wg.Wait()
		l, err := s.ListByChannel(ctx, "kessoku")
		if err != nil {
			t.Fatal(err)
		}
		if len(l) > 1 {
			t.Errorf("concurrent upserts made %d commands", len(l))
		}
	}
}
