package store

import (
	"math/rand"

	"github.com/eternalApril/nebula/keyspace"
)

// Set is an unordered collection of unique members behind a single key.
// The container is not thread-safe on its own; the keyspace lock guards it.
type Set struct {
	members map[string]struct{}
}

// NewSet creates an empty set container.
func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

func (st *Set) add(members ...string) int {
	added := 0
	for _, m := range members {
		if _, ok := st.members[m]; !ok {
			st.members[m] = struct{}{}
			added++
		}
	}
	return added
}

func (st *Set) remove(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, ok := st.members[m]; ok {
			delete(st.members, m)
			removed++
		}
	}
	return removed
}

func (st *Set) slice() []string {
	out := make([]string, 0, len(st.members))
	for m := range st.members {
		out = append(out, m)
	}
	return out
}

// SAdd adds members to the set at key, creating it when absent.
// Returns the number of members actually added.
func (s *Store) SAdd(key string, members ...string) (int, error) {
	var added int
	err := s.ks.Update(key, keyspace.TypeSet,
		func() any { return NewSet() },
		func(e *keyspace.Entry) (bool, error) {
			added = e.Value.(*Set).add(members...)
			return false, nil
		})
	return added, err
}

// SRem removes members from the set at key. A drained set deletes its key.
// Returns the number of members actually removed.
func (s *Store) SRem(key string, members ...string) (int, error) {
	var removed int
	err := s.ks.Update(key, keyspace.TypeSet, nil,
		func(e *keyspace.Entry) (bool, error) {
			st := e.Value.(*Set)
			removed = st.remove(members...)
			return len(st.members) == 0, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return removed, err
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key, member string) (bool, error) {
	var ok bool
	err := s.ks.View(key, keyspace.TypeSet, func(e *keyspace.Entry) error {
		_, ok = e.Value.(*Set).members[member]
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return false, nil
	}
	return ok, err
}

// SMembers returns all members of the set at key, in no particular order.
func (s *Store) SMembers(key string) ([]string, error) {
	var out []string
	err := s.ks.View(key, keyspace.TypeSet, func(e *keyspace.Entry) error {
		out = e.Value.(*Set).slice()
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return nil, nil
	}
	return out, err
}

// SCard returns the cardinality of the set at key, 0 for an absent key.
func (s *Store) SCard(key string) (int, error) {
	var card int
	err := s.ks.View(key, keyspace.TypeSet, func(e *keyspace.Entry) error {
		card = len(e.Value.(*Set).members)
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return card, err
}

// SRandMember returns up to count distinct random members without removing them.
func (s *Store) SRandMember(key string, count int) ([]string, error) {
	var out []string
	err := s.ks.View(key, keyspace.TypeSet, func(e *keyspace.Entry) error {
		members := e.Value.(*Set).slice()
		if count <= 0 || len(members) == 0 {
			return nil
		}
		rand.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		if count > len(members) {
			count = len(members)
		}
		out = members[:count]
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return nil, nil
	}
	return out, err
}

// SPop removes and returns up to count random members.
// A drained set deletes its key.
func (s *Store) SPop(key string, count int) ([]string, error) {
	var out []string
	err := s.ks.Update(key, keyspace.TypeSet, nil,
		func(e *keyspace.Entry) (bool, error) {
			st := e.Value.(*Set)
			if count <= 0 || len(st.members) == 0 {
				return false, nil
			}
			members := st.slice()
			rand.Shuffle(len(members), func(i, j int) {
				members[i], members[j] = members[j], members[i]
			})
			if count > len(members) {
				count = len(members)
			}
			out = members[:count]
			for _, m := range out {
				delete(st.members, m)
			}
			return len(st.members) == 0, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return nil, nil
	}
	return out, err
}

// snapshotSet copies the members of the set at key, treating an absent key
// as the empty set. A non-set entry surfaces ErrTypeMismatch.
func (s *Store) snapshotSet(key string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := s.ks.View(key, keyspace.TypeSet, func(e *keyspace.Entry) error {
		for m := range e.Value.(*Set).members {
			out[m] = struct{}{}
		}
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return out, nil
	}
	return out, err
}

// SUnion returns the union of the sets at keys. Zero keys yields an empty set.
func (s *Store) SUnion(keys ...string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, key := range keys {
		snap, err := s.snapshotSet(key)
		if err != nil {
			return nil, err
		}
		for m := range snap {
			seen[m] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	return out, nil
}

// SInter returns the intersection of the sets at keys.
// Zero keys yields an empty set by convention.
func (s *Store) SInter(keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	first, err := s.snapshotSet(keys[0])
	if err != nil {
		return nil, err
	}

	for _, key := range keys[1:] {
		if len(first) == 0 {
			return nil, nil
		}
		snap, err := s.snapshotSet(key)
		if err != nil {
			return nil, err
		}
		for m := range first {
			if _, ok := snap[m]; !ok {
				delete(first, m)
			}
		}
	}

	out := make([]string, 0, len(first))
	for m := range first {
		out = append(out, m)
	}
	return out, nil
}

// SDiff returns the members of the first set not present in any of the
// remaining sets. Zero keys yields an empty set.
func (s *Store) SDiff(keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	first, err := s.snapshotSet(keys[0])
	if err != nil {
		return nil, err
	}

	for _, key := range keys[1:] {
		snap, err := s.snapshotSet(key)
		if err != nil {
			return nil, err
		}
		for m := range snap {
			delete(first, m)
		}
	}

	out := make([]string, 0, len(first))
	for m := range first {
		out = append(out, m)
	}
	return out, nil
}
