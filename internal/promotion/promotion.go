// Package promotion implements the one concretely testable slice of the
// channel promotion pipeline: ordering a requested set of channels so that
// every channel a promoted channel depends on is promoted first (spec
// scenario S5). The rest of the promotion workflow — approvals, diffing,
// git I/O — is out of scope (spec §1 Non-goals).
package promotion

import "fmt"

// Graph is a channel dependency graph: channel name -> the names of
// channels it depends on (must be promoted before it).
type Graph map[string][]string

// Order returns requested, reordered so that for every channel in the
// result, all of its dependencies (restricted to Graph) appear earlier,
// matching spec scenario S5: `{ch1 depends on ch2, ch2 depends on ch3}`
// promoting `[ch1, ch2, ch3]` yields `[ch3, ch2, ch1]`.
//
// Dependencies outside requested are ignored (already-promoted or
// unrelated channels aren't part of this promotion). A cycle among
// requested channels is reported as an error rather than silently
// truncating the order.
func Order(requested []string, graph Graph) ([]string, error) {
	requestedSet := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		requestedSet[name] = struct{}{}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(requested))
	out := make([]string, 0, len(requested))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("promotion: dependency cycle: %v -> %s", path, name)
		}
		state[name] = visiting
		for _, dep := range graph[name] {
			if _, ok := requestedSet[dep]; !ok {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		out = append(out, name)
		return nil
	}

	for _, name := range requested {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
