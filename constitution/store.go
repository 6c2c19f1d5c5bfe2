package constitution

import (
	"fmt"
)

// Store holds the active constitution and the lineage of superseded
// versions. Mutated only through Adopt: the amendment engine is the sole
// caller outside of initialization.
type Store struct {
	active  *Constitution
	history []*Constitution
}

func NewStore(initial *Constitution) *Store {
	return &Store{active: initial, history: []*Constitution{initial}}
}

// Active returns the currently effective constitution version.
func (s *Store) Active() *Constitution {
	return s.active
}

// History returns every version ever active, oldest first.
func (s *Store) History() []*Constitution {
	return s.history
}

// Adopt replaces the active constitution with next. The caller must already
// have verified the amendment procedure (cooling, threshold, prior hash);
// the store re-checks only the ratchet, its last line of defence.
func (s *Store) Adopt(next *Constitution) (*Constitution, error) {
	if next == nil {
		return nil, fmt.Errorf("cannot adopt nil constitution")
	}
	if err := Ratchet(s.active, next); err != nil {
		return nil, err
	}
	s.active = next
	s.history = append(s.history, next)
	return next, nil
}
