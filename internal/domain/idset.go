package domain

import (
	"encoding/json"
	"slices"
)

// IDSet is a set of question ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id int64) { s[id] = struct{}{} }

// Has reports whether id is a member. A nil set has no members.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of members.
func (s IDSet) Len() int { return len(s) }

// Intersect returns the ids present in both s and other.
func (s IDSet) Intersect(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if other.Has(id) {
			out.Add(id)
		}
	}
	return out
}

// Difference returns the ids of s that are not in other.
func (s IDSet) Difference(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if !other.Has(id) {
			out.Add(id)
		}
	}
	return out
}

// Clone returns a copy of s.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out.Add(id)
	}
	return out
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Equal reports whether both sets hold the same members.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of ids.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
