// Package diff compares two flat field maps, such as the connection
// properties of an entry before and after an edit.
package diff

import "sort"

// FindChanges compares two field snapshots and returns a list of changes
// ordered by field name.
func FindChanges(prev, curr map[string]string) []FieldChange {
	var changes []FieldChange

	// Detect changed or added fields
	for k, newVal := range curr {
		oldVal, exists := prev[k]
		if !exists || oldVal != newVal {
			changes = append(changes, FieldChange{Name: k, Old: oldVal, New: newVal})
		}
	}

	// Detect removed fields
	for k, oldVal := range prev {
		if _, exists := curr[k]; !exists {
			changes = append(changes, FieldChange{Name: k, Old: oldVal, Removed: true})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}
