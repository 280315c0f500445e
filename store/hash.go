package store

import (
	"fmt"
	"strconv"

	"github.com/eternalApril/nebula/keyspace"
)

// Hash is a field-to-value map behind a single key.
// The container is not thread-safe on its own; the keyspace lock guards it.
type Hash struct {
	fields map[string]string
}

// NewHash creates an empty hash container.
func NewHash() *Hash {
	return &Hash{fields: make(map[string]string)}
}

// Get returns the value of field.
func (h *Hash) Get(field string) (string, bool) {
	v, ok := h.fields[field]
	return v, ok
}

// Set stores field. Returns true when the field is new.
func (h *Hash) Set(field, value string) bool {
	_, existed := h.fields[field]
	h.fields[field] = value
	return !existed
}

// HSet sets field in the hash at key, creating the hash when absent.
// Returns 1 when the field is new, 0 when it was overwritten.
func (s *Store) HSet(key, field, value string) (int, error) {
	return s.HSetMany(key, map[string]string{field: value})
}

// HSetMany sets the given fields in one atomic step.
// Returns the number of fields that did not exist before.
func (s *Store) HSetMany(key string, fields map[string]string) (int, error) {
	var added int
	err := s.ks.Update(key, keyspace.TypeHash,
		func() any { return NewHash() },
		func(e *keyspace.Entry) (bool, error) {
			h := e.Value.(*Hash)
			for f, v := range fields {
				if h.Set(f, v) {
					added++
				}
			}
			return false, nil
		})
	return added, err
}

// HSetNX sets field only when it does not exist yet. Returns true if set.
func (s *Store) HSetNX(key, field, value string) (bool, error) {
	var set bool
	err := s.ks.Update(key, keyspace.TypeHash,
		func() any { return NewHash() },
		func(e *keyspace.Entry) (bool, error) {
			h := e.Value.(*Hash)
			if _, ok := h.fields[field]; ok {
				return false, nil
			}
			h.fields[field] = value
			set = true
			return false, nil
		})
	return set, err
}

// HGet returns the value of field in the hash at key.
func (s *Store) HGet(key, field string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.ks.View(key, keyspace.TypeHash, func(e *keyspace.Entry) error {
		value, ok = e.Value.(*Hash).Get(field)
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

// HGetAll returns a snapshot of every field-value pair in the hash at key.
func (s *Store) HGetAll(key string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.ks.View(key, keyspace.TypeHash, func(e *keyspace.Entry) error {
		for f, v := range e.Value.(*Hash).fields {
			out[f] = v
		}
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return out, nil
	}
	return out, err
}

// HDel removes fields from the hash at key. A drained hash deletes its key.
// Returns the number of fields actually removed.
func (s *Store) HDel(key string, fields ...string) (int, error) {
	var removed int
	err := s.ks.Update(key, keyspace.TypeHash, nil,
		func(e *keyspace.Entry) (bool, error) {
			h := e.Value.(*Hash)
			for _, f := range fields {
				if _, ok := h.fields[f]; ok {
					delete(h.fields, f)
					removed++
				}
			}
			return len(h.fields) == 0, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return removed, err
}

// HIncrBy increments the integer value of field by delta, counting a missing
// field from 0. A non-integer value is ErrNotANumber.
func (s *Store) HIncrBy(key, field string, delta int64) (int64, error) {
	var result int64
	err := s.ks.Update(key, keyspace.TypeHash,
		func() any { return NewHash() },
		func(e *keyspace.Entry) (bool, error) {
			h := e.Value.(*Hash)
			var current int64
			if raw, ok := h.fields[field]; ok {
				v, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return false, fmt.Errorf("%w: %q", keyspace.ErrNotANumber, raw)
				}
				current = v
			}
			result = current + delta
			h.fields[field] = strconv.FormatInt(result, 10)
			return false, nil
		})
	return result, err
}

// HExists reports whether field exists in the hash at key.
func (s *Store) HExists(key, field string) (bool, error) {
	var ok bool
	err := s.ks.View(key, keyspace.TypeHash, func(e *keyspace.Entry) error {
		_, ok = e.Value.(*Hash).fields[field]
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return false, nil
	}
	return ok, err
}

// HKeys returns all field names in the hash at key.
func (s *Store) HKeys(key string) ([]string, error) {
	var out []string
	err := s.ks.View(key, keyspace.TypeHash, func(e *keyspace.Entry) error {
		h := e.Value.(*Hash)
		out = make([]string, 0, len(h.fields))
		for f := range h.fields {
			out = append(out, f)
		}
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return nil, nil
	}
	return out, err
}

// HVals returns all values in the hash at key.
func (s *Store) HVals(key string) ([]string, error) {
	var out []string
	err := s.ks.View(key, keyspace.TypeHash, func(e *keyspace.Entry) error {
		h := e.Value.(*Hash)
		out = make([]string, 0, len(h.fields))
		for _, v := range h.fields {
			out = append(out, v)
		}
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return nil, nil
	}
	return out, err
}

// HLen returns the number of fields in the hash at key, 0 for an absent key.
func (s *Store) HLen(key string) (int, error) {
	var length int
	err := s.ks.View(key, keyspace.TypeHash, func(e *keyspace.Entry) error {
		length = len(e.Value.(*Hash).fields)
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return length, err
}
