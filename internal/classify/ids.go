package classify

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out item identifiers.
type IDGenerator interface {
	Next() string
}

// SequenceIDs is a monotonic counter behind a random per-instance prefix, so IDs stay
// unique across rapid calls and across process restarts.
type SequenceIDs struct {
	prefix string
	n      atomic.Uint64
}

// NewSequenceIDs returns a generator with a fresh random prefix.
func NewSequenceIDs() *SequenceIDs {
	return &SequenceIDs{prefix: uuid.New().String()[:8]}
}

// Next returns the next identifier.
func (s *SequenceIDs) Next() string {
	return fmt.Sprintf("item-%s-%d", s.prefix, s.n.Add(1))
}
