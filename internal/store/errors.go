package store

import "fmt"

// errNotFound builds a stable, loggable error for a missing row; kind
// identifies the entity (e.g. "user", "chat", "task") and id its key.
func errNotFound(kind string, id int64) error {
	return fmt.Errorf("%s %d not found", kind, id)
}
