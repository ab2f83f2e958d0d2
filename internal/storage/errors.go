package storage

import (
	"errors"
	"fmt"

	"staffhub/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrConflict is returned when a concurrent writer won a race on the same
	// row. Callers may retry.
	ErrConflict = errors.New("concurrent modification")
)

func tableFor(t models.TargetType) (string, error) {
	switch t {
	case models.TargetAnnouncement:
		return "announcements", nil
	case models.TargetPost:
		return "posts", nil
	default:
		return "", fmt.Errorf("unknown target type %q: %w", t, ErrNotFound)
	}
}
