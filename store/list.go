package store

import (
	"github.com/eternalApril/nebula/keyspace"
)

// List is an ordered sequence of values behind a single key.
// Push/pop at either end are O(1) amortized; index operations are O(N).
// The container is not thread-safe on its own; the keyspace lock guards it.
type List struct {
	items []string
}

// NewList creates an empty list container.
func NewList() *List {
	return &List{items: make([]string, 0)}
}

// resolveIndex converts a possibly-negative index to a non-negative one.
func (l *List) resolveIndex(index int) int {
	if index < 0 {
		return len(l.items) + index
	}
	return index
}

func (l *List) lpush(values ...string) int {
	// values are prepended one at a time, so the last argument ends up
	// at the head
	items := make([]string, len(values)+len(l.items))
	for i, v := range values {
		items[len(values)-1-i] = v
	}
	copy(items[len(values):], l.items)
	l.items = items
	return len(l.items)
}

func (l *List) rpush(values ...string) int {
	l.items = append(l.items, values...)
	return len(l.items)
}

func (l *List) lpop() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	v := l.items[0]
	l.items = l.items[1:]
	return v, true
}

func (l *List) rpop() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	v := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return v, true
}

func (l *List) rng(start, stop int) []string {
	n := len(l.items)
	if n == 0 {
		return nil
	}

	s := l.resolveIndex(start)
	e := l.resolveIndex(stop)
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}
	if s > e {
		return nil
	}

	out := make([]string, e-s+1)
	copy(out, l.items[s:e+1])
	return out
}

func (l *List) trim(start, stop int) {
	n := len(l.items)
	if n == 0 {
		return
	}

	s := l.resolveIndex(start)
	e := l.resolveIndex(stop)
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}
	if s > e || s >= n {
		l.items = l.items[:0]
		return
	}

	kept := make([]string, e-s+1)
	copy(kept, l.items[s:e+1])
	l.items = kept
}

// insert places value before or after the first occurrence of pivot.
// Returns the new length, or -1 when the pivot is absent.
func (l *List) insert(before bool, pivot, value string) int {
	for i, item := range l.items {
		if item == pivot {
			pos := i
			if !before {
				pos = i + 1
			}
			l.items = append(l.items, "")
			copy(l.items[pos+1:], l.items[pos:])
			l.items[pos] = value
			return len(l.items)
		}
	}
	return -1
}

// LPush prepends values to the list at key, creating it when absent.
// Returns the new length.
func (s *Store) LPush(key string, values ...string) (int, error) {
	var length int
	err := s.ks.Update(key, keyspace.TypeList,
		func() any { return NewList() },
		func(e *keyspace.Entry) (bool, error) {
			length = e.Value.(*List).lpush(values...)
			return false, nil
		})
	return length, err
}

// RPush appends values to the list at key, creating it when absent.
// Returns the new length.
func (s *Store) RPush(key string, values ...string) (int, error) {
	var length int
	err := s.ks.Update(key, keyspace.TypeList,
		func() any { return NewList() },
		func(e *keyspace.Entry) (bool, error) {
			length = e.Value.(*List).rpush(values...)
			return false, nil
		})
	return length, err
}

// LPop removes and returns the head of the list. A drained list deletes its key.
func (s *Store) LPop(key string) (string, bool, error) {
	return s.pop(key, (*List).lpop)
}

// RPop removes and returns the tail of the list. A drained list deletes its key.
func (s *Store) RPop(key string) (string, bool, error) {
	return s.pop(key, (*List).rpop)
}

func (s *Store) pop(key string, popFn func(*List) (string, bool)) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.ks.Update(key, keyspace.TypeList, nil,
		func(e *keyspace.Entry) (bool, error) {
			l := e.Value.(*List)
			value, ok = popFn(l)
			return len(l.items) == 0, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// LLen returns the length of the list at key, 0 for an absent key.
func (s *Store) LLen(key string) (int, error) {
	var length int
	err := s.ks.View(key, keyspace.TypeList, func(e *keyspace.Entry) error {
		length = len(e.Value.(*List).items)
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return length, err
}

// LIndex returns the element at index. Negative indices count from the end.
func (s *Store) LIndex(key string, index int) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.ks.View(key, keyspace.TypeList, func(e *keyspace.Entry) error {
		l := e.Value.(*List)
		idx := l.resolveIndex(index)
		if idx >= 0 && idx < len(l.items) {
			value, ok = l.items[idx], true
		}
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// LSet overwrites the element at index.
// Returns ErrKeyNotFound for an absent key and ErrInvalidRange for an
// out-of-range index.
func (s *Store) LSet(key string, index int, value string) error {
	return s.ks.Update(key, keyspace.TypeList, nil,
		func(e *keyspace.Entry) (bool, error) {
			l := e.Value.(*List)
			idx := l.resolveIndex(index)
			if idx < 0 || idx >= len(l.items) {
				return false, keyspace.ErrInvalidRange
			}
			l.items[idx] = value
			return false, nil
		})
}

// LRange returns elements from start to stop inclusive, with Python-slice
// style negative indices. An absent key yields an empty result.
func (s *Store) LRange(key string, start, stop int) ([]string, error) {
	var out []string
	err := s.ks.View(key, keyspace.TypeList, func(e *keyspace.Entry) error {
		out = e.Value.(*List).rng(start, stop)
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return nil, nil
	}
	return out, err
}

// LTrim discards every element outside the inclusive [start, stop] range.
// Trimming to an empty range deletes the key.
func (s *Store) LTrim(key string, start, stop int) error {
	err := s.ks.Update(key, keyspace.TypeList, nil,
		func(e *keyspace.Entry) (bool, error) {
			l := e.Value.(*List)
			l.trim(start, stop)
			return len(l.items) == 0, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return nil
	}
	return err
}

// LInsert inserts value before or after the first occurrence of pivot.
// Returns the new length, -1 when the pivot is absent, or 0 for an absent key.
func (s *Store) LInsert(key string, before bool, pivot, value string) (int, error) {
	var length int
	err := s.ks.Update(key, keyspace.TypeList, nil,
		func(e *keyspace.Entry) (bool, error) {
			length = e.Value.(*List).insert(before, pivot, value)
			return false, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return length, err
}
