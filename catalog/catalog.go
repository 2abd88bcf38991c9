// Package catalog is a set of independent scenarios, each pairing a way of
// raising a fault with the handling policy that suits its execution mode:
// synchronous guards, error-first callbacks, promise rejection handlers,
// awaited rejections, error events, and the last-resort global hooks.
//
// Every scenario runs in isolation, on its own loop with its own hooks (see
// [Runner]). Fatal scenarios terminate their loop through the uncaught
// exception pathway.
package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Scenario is one demonstration.
type Scenario struct {
	// Run sets the scenario up. It is called as the first task on the
	// scenario's loop, so a fault it throws is uncaught.
	Run         func(env *Env)
	Name        string
	Description string
	ID          int
	// Fatal scenarios are expected to end with an uncaught fault.
	Fatal bool
}

func (s *Scenario) String() string {
	return fmt.Sprintf("[%d] %s", s.ID, s.Name)
}

// All returns every scenario, ordered by ID.
func All() []*Scenario {
	out := slices.Clone(registry)
	slices.SortFunc(out, func(a, b *Scenario) int { return a.ID - b.ID })
	return out
}

// Lookup finds a scenario by name or numeric ID.
func Lookup(key string) (*Scenario, bool) {
	key = strings.TrimSpace(key)
	id, err := strconv.Atoi(key)
	for _, s := range registry {
		if s.Name == key || (err == nil && s.ID == id) {
			return s, true
		}
	}
	return nil, false
}

// Select resolves keys (see [Lookup]), defaulting to every scenario, and
// orders the result for running: non-fatal scenarios first, then fatal ones,
// each by ID. Duplicates are removed.
func Select(keys ...string) ([]*Scenario, error) {
	var out []*Scenario
	if len(keys) == 0 {
		out = All()
	} else {
		for _, key := range keys {
			s, ok := Lookup(key)
			if !ok {
				return nil, fmt.Errorf("catalog: unknown scenario %q", key)
			}
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *Scenario) int {
		if a.Fatal != b.Fatal {
			if a.Fatal {
				return 1
			}
			return -1
		}
		return a.ID - b.ID
	})
	return out, nil
}
