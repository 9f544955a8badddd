package warpsync

import "fmt"

// SourceID identifies a source slot. It is stable across insertion
// and removal of other sources, the way beacon-chain peer-status
// tables key entries by a stable handle rather than by position.
type SourceID uint64

// source is one warp-sync data source: caller-owned user data plus
// whether it has ever been tried (the flag is never reset).
type source[T any] struct {
	userData     T
	alreadyTried bool
}

// SourceSet is a slot-indexed table of warp-sync sources. The zero
// value is not usable; construct with NewSourceSet.
type SourceSet[T any] struct {
	slots  map[SourceID]*source[T]
	order  []SourceID // insertion order, for "first untried" scans
	nextID SourceID
}

// NewSourceSet returns an empty source table.
func NewSourceSet[T any]() *SourceSet[T] {
	return &SourceSet[T]{slots: make(map[SourceID]*source[T])}
}

// Add inserts a new source and returns its stable id.
func (s *SourceSet[T]) Add(userData T) SourceID {
	id := s.nextID
	s.nextID++
	s.slots[id] = &source[T]{userData: userData}
	s.order = append(s.order, id)
	return id
}

// Remove deletes the source with the given id. It panics if the id is
// unknown, matching the source-of-truth contract: a caller must never
// remove an id it doesn't hold.
func (s *SourceSet[T]) Remove(id SourceID) {
	if _, ok := s.slots[id]; !ok {
		panic(fmt.Sprintf("warpsync: Remove of unknown source id %d", id))
	}
	delete(s.slots, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// UserData returns the user data of id, and whether id exists.
func (s *SourceSet[T]) UserData(id SourceID) (T, bool) {
	src, ok := s.slots[id]
	if !ok {
		var zero T
		return zero, false
	}
	return src.userData, true
}

// SetUserData replaces the user data of id. It panics on an unknown id.
func (s *SourceSet[T]) SetUserData(id SourceID, userData T) {
	src, ok := s.slots[id]
	if !ok {
		panic(fmt.Sprintf("warpsync: SetUserData of unknown source id %d", id))
	}
	src.userData = userData
}

// IDs returns every live source id, in insertion order.
func (s *SourceSet[T]) IDs() []SourceID {
	out := make([]SourceID, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of live sources.
func (s *SourceSet[T]) Len() int {
	return len(s.slots)
}

// MarkTried flips a source's already_tried flag to true. It is never
// reset once set, per spec §4.2.
func (s *SourceSet[T]) MarkTried(id SourceID) {
	if src, ok := s.slots[id]; ok {
		src.alreadyTried = true
	}
}

// SelectUntried scans sources in insertion order and returns the
// first one with already_tried == false. ok is false if every source
// has been tried, or there are no sources.
func (s *SourceSet[T]) SelectUntried() (id SourceID, ok bool) {
	for _, candidate := range s.order {
		if !s.slots[candidate].alreadyTried {
			return candidate, true
		}
	}
	return 0, false
}

// AllUserData returns the user data of every live source, in
// insertion order — used to build the Success.Sources list when the
// machine terminates.
func (s *SourceSet[T]) AllUserData() []T {
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.slots[id].userData)
	}
	return out
}
