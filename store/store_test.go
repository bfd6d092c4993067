package store_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/profprotonn/protonbot/store"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"HeLLo", "hello"},
		{"  hello\t", "hello"},
		{"", ""},
		{"ÉCOLE", "école"},
		{"STRASSE", "strasse"},
		{"Straße", "straße"},
		{"ſ", "ſ"},
	}
	for _, c := range cases {
		if got := store.Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q): want %q, got %q", c.in, c.want, got)
		}
	}
}

func TestChannel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"profprotonn", "profprotonn"},
		{"#ProfProtonn", "profprotonn"},
		{" #ruchess27 ", "ruchess27"},
	}
	for _, c := range cases {
		if got := store.Channel(c.in); got != c.want {
			t.Errorf("Channel(%q): want %q, got %q", c.in, c.want, got)
		}
	}
}

func TestPatchApply(t *testing.T) {
	base := store.Command{ID: "1", Channel: "kessoku", Trigger: "bocchi", Response: "guitar hero"}
	ptr := func(s string) *string { return &s }
	yes := true
	cases := []struct {
		name  string
		patch store.Patch
		want  store.Command
		err   error
	}{
		{
			name:  "empty",
			patch: store.Patch{},
			want:  base,
		},
		{
			name:  "response",
			patch: store.Patch{Response: ptr("  lead guitar ")},
			want:  store.Command{ID: "1", Channel: "kessoku", Trigger: "bocchi", Response: "lead guitar"},
		},
		{
			name:  "keys",
			patch: store.Patch{Channel: ptr("#SickHack"), Trigger: ptr("Kikuri"), RequiresMod: &yes},
			want:  store.Command{ID: "1", Channel: "sickhack", Trigger: "kikuri", Response: "guitar hero", RequiresMod: true},
		},
		{
			name:  "blank",
			patch: store.Patch{Trigger: ptr(" ")},
			err:   store.ErrMissing,
		},
		{
			name:  "multiline",
			patch: store.Patch{Response: ptr("Noon.\r\nPRIVMSG #otherchannel :injected\n")},
			want:  store.Command{ID: "1", Channel: "kessoku", Trigger: "bocchi", Response: "Noon. PRIVMSG #otherchannel :injected"},
		},
		{
			name:  "control-trigger",
			patch: store.Patch{Trigger: ptr("b\x00c")},
			err:   store.ErrInvalid,
		},
		{
			name:  "control-channel",
			patch: store.Patch{Channel: ptr("kessoku\x00b")},
			err:   store.ErrInvalid,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.patch.Apply(base)
			if !errors.Is(err, c.err) {
				t.Fatalf("wrong error: want %v, got %v", c.err, err)
			}
			if c.err != nil {
				return
			}
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("wrong result (+got/-want):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	type fields struct {
		Channel, Trigger, Response string
	}
	cases := []struct {
		name string
		in   fields
		want fields
		err  error
	}{
		{
			name: "ok",
			in:   fields{"#Kessoku", " Bocchi ", " guitar hero "},
			want: fields{"kessoku", "bocchi", "guitar hero"},
		},
		{
			name: "multiline",
			in:   fields{"kessoku", "time", "Noon.\r\nPRIVMSG #otherchannel :injected"},
			want: fields{"kessoku", "time", "Noon. PRIVMSG #otherchannel :injected"},
		},
		{
			name: "nul",
			in:   fields{"kessoku", "time", "Noon.\x00"},
			want: fields{"kessoku", "time", "Noon."},
		},
		{
			name: "blank-response",
			in:   fields{"kessoku", "time", "\r\n"},
			want: fields{"kessoku", "time", ""},
			err:  store.ErrMissing,
		},
		{
			// Both would share a key if control characters were allowed.
			name: "control-channel",
			in:   fields{"a\x00b", "c", "x"},
			want: fields{"a\x00b", "c", "x"},
			err:  store.ErrInvalid,
		},
		{
			name: "control-trigger",
			in:   fields{"a", "b\x00c", "x"},
			want: fields{"a", "b\x00c", "x"},
			err:  store.ErrInvalid,
		},
		{
			name: "tab-trigger",
			in:   fields{"a", "b\tc", "x"},
			want: fields{"a", "b\tc", "x"},
			err:  store.ErrInvalid,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var got fields
			var err error
			got.Channel, got.Trigger, got.Response, err = store.Validate(c.in.Channel, c.in.Trigger, c.in.Response)
			if !errors.Is(err, c.err) {
				t.Errorf("wrong error: want %v, got %v", c.err, err)
			}
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("wrong result (+got/-want):\n%s", diff)
			}
		})
	}
}
