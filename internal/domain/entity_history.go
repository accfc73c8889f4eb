package domain

import (
	"time"
)

// HistoryEntry captures superseded content of a stored document. Immutable once created.
type HistoryEntry struct {
	Identity  string
	Content   []byte
	CreatedAt time.Time
	// Sequence breaks ties between entries archived at the same timestamp
	Sequence uint64
}

// Before reports whether h was archived before other
func (h HistoryEntry) Before(other HistoryEntry) bool {
	if h.CreatedAt.Equal(other.CreatedAt) {
		return h.Sequence < other.Sequence
	}
	return h.CreatedAt.Before(other.CreatedAt)
}
