package command_test

import (
	"testing"

	"github.com/profprotonn/protonbot/command"
)

func TestRegistry(t *testing.T) {
	r := command.NewRegistry(
		[]command.Static{
			{Trigger: "Discord", Response: "discord.gg/kessoku"},
			{Trigger: "hello", Response: "Hi from config"},
			{Trigger: " ", Response: "blank"},
		},
		command.Builtin,
	)
	cases := []struct {
		name    string
		trigger string
		want    string
		ok      bool
	}{
		{"configured", "discord", "discord.gg/kessoku", true},
		{"case", "DISCORD", "discord.gg/kessoku", true},
		{"first-wins", "hello", "Hi from config", true},
		{"missing", "bocchi", "", false},
		{"empty", "", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := r.Lookup(c.trigger)
			if got != c.want || ok != c.ok {
				t.Errorf("wrong lookup: want (%q, %t), got (%q, %t)", c.want, c.ok, got, ok)
			}
		})
	}
	if r.Len() != 2 {
		t.Errorf("wrong number of commands: want 2, got %d", r.Len())
	}
}

func TestBuiltin(t *testing.T) {
	r := command.NewRegistry(command.Builtin)
	got, ok := r.Lookup("Hello")
	if !ok || got != "Hello There!" {
		t.Errorf("wrong hello: %q, %t", got, ok)
	}
}

func TestNilRegistry(t *testing.T) {
	var r *command.Registry
	if _, ok := r.Lookup("hello"); ok {
		t.Error("nil registry found a command")
	}
}
