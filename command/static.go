package command

import "github.com/profprotonn/protonbot/store"

// Static is a command that always replies with the same text.
type Static struct {
	Trigger  string `toml:"trigger"`
	Response string `toml:"response"`
}

// Builtin is the built-in static command table.
var Builtin = []Static{
	{Trigger: "hello", Response: "Hello There!"},
}

// Registry is a read-only table of static commands.
type Registry struct {
	m map[string]string
}

// NewRegistry creates a registry from the given commands.
// Triggers match case-insensitively. When a trigger appears more than once,
// the first definition wins.
func NewRegistry(cmds ...[]Static) *Registry {
	r := Registry{m: make(map[string]string)}
	for _, l := range cmds {
		for _, c := range l {
			k := store.Normalize(c.Trigger)
			if k == "" {
				continue
			}
			if _, ok := r.m[k]; ok {
				continue
			}
			r.m[k] = c.Response
		}
	}
	return &r
}

// Lookup returns the response for a trigger.
func (r *Registry) Lookup(trigger string) (string, bool) {
	if r == nil {
		return "", false
	}
	s, ok := r.m[store.Normalize(trigger)]
	return s, ok
}

// Len returns the number of commands in the registry.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.m)
}
