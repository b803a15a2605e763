package diff

// FieldChange represents a change between two snapshots of a field.
type FieldChange struct {
	Name    string `json:"name"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Removed bool   `json:"removed,omitempty"`
}
