package kanban

import "fmt"

// checkPermutation verifies that ordered names every id in current exactly once.
func checkPermutation(current, ordered []string) error {
	if len(current) != len(ordered) {
		return fmt.Errorf("%w: expected %d ids, got %d", ErrInvalidOrder, len(current), len(ordered))
	}
	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = false
	}
	for _, id := range ordered {
		seen, ok := known[id]
		if !ok {
			return fmt.Errorf("%w: unknown id %q", ErrInvalidOrder, id)
		}
		if seen {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidOrder, id)
		}
		known[id] = true
	}
	return nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

// insertAt places id at index, clamping index to the end of the list.
func insertAt(ids []string, id string, index int) []string {
	if index > len(ids) {
		index = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}

// positionWrite is one row whose stored position differs from its index.
type positionWrite struct {
	ID       string
	Position int
}

// densePlan returns the writes needed to make positions equal each id's index
// in ordered. Rows already in place are skipped.
func densePlan(ordered []string, current map[string]int) []positionWrite {
	writes := make([]positionWrite, 0)
	for index, id := range ordered {
		if position, ok := current[id]; ok && position == index {
			continue
		}
		writes = append(writes, positionWrite{ID: id, Position: index})
	}
	return writes
}
