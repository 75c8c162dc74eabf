package domain

import (
	"encoding/json"
	"fmt"

	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"gorm.io/datatypes"
)

// Decode reads a logged snapshot. A missing snapshot is a corrupt entry.
func Decode[T any](raw datatypes.JSON) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, fmt.Errorf("%w: snapshot missing", txlogdomain.ErrInvalidRecord)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", txlogdomain.ErrInvalidRecord, err)
	}
	return v, nil
}

// Conflict wraps cause as an undo conflict while keeping it matchable.
func Conflict(cause error) error {
	return fmt.Errorf("%w: %w", txlogdomain.ErrUndoConflict, cause)
}

// Conflictf reports an undo conflict with a description.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", txlogdomain.ErrUndoConflict, fmt.Sprintf(format, args...))
}
