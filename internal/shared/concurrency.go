package shared

import (
	"fmt"
	"strings"
)

// ErrConcurrencyConflict is returned when the caller's version token is stale.
var ErrConcurrencyConflict = NewError(KindConcurrency, "record was modified by another user, reload and retry")

// ConcurrencyGuard compares the stored version token with the one the caller last read.
type ConcurrencyGuard interface {
	EnsureVersion(current, expected int64) error
}

// VersionGuard is the default ConcurrencyGuard.
type VersionGuard struct{}

// EnsureVersion fails with ErrConcurrencyConflict on mismatch.
func (VersionGuard) EnsureVersion(current, expected int64) error {
	if current != expected {
		return fmt.Errorf("%w (current version %d, supplied %d)", ErrConcurrencyConflict, current, expected)
	}
	return nil
}

// IsolationLevel selects the transaction isolation for a unit of work.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
	Serializable
)

func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "repeatable_read"
	case Serializable:
		return "serializable"
	default:
		return "read_committed"
	}
}

// ParseIsolation maps configuration values to an IsolationLevel.
func ParseIsolation(value string) (IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "read_committed", "read-committed":
		return ReadCommitted, nil
	case "repeatable_read", "repeatable-read":
		return RepeatableRead, nil
	case "serializable":
		return Serializable, nil
	}
	return ReadCommitted, fmt.Errorf("unknown isolation level %q", value)
}
