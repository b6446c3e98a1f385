package storage

import (
	"fmt"
	"strings"
)

// validID rejects ids that could address anything other than a single record.
func validID(id string) error {
	if id == "" {
		return fmt.Errorf("storage: empty id")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || strings.HasPrefix(id, ".") {
		return fmt.Errorf("storage: invalid id %q", id)
	}
	return nil
}
