package mapping

import "fmt"

// MappingError reports a remote record that lacks a field the bridge needs,
// or carries it with an unusable type.
type MappingError struct {
	Model string
	Field string
	ID    int
	Got   any
}

func (e *MappingError) Error() string {
	if e.Got != nil {
		return fmt.Sprintf("mapping %s(%d): field %q has unexpected type %T", e.Model, e.ID, e.Field, e.Got)
	}
	return fmt.Sprintf("mapping %s(%d): missing required field %q", e.Model, e.ID, e.Field)
}
