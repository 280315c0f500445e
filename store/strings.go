package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/eternalApril/nebula/keyspace"
)

// Set stores a string value under key without expiry, replacing any prior
// entry regardless of its former type.
func (s *Store) Set(key, value string) error {
	return s.ks.Put(key, keyspace.TypeString, value, 0)
}

// SetWithTTL stores a string value with a lifetime. ttl <= 0 is ErrInvalidTTL.
func (s *Store) SetWithTTL(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return keyspace.ErrInvalidTTL
	}
	return s.ks.Put(key, keyspace.TypeString, value, ttl)
}

// Get returns the string value and true if the key is live.
// An absent or expired key yields ("", false, nil).
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.ks.View(key, keyspace.TypeString, func(e *keyspace.Entry) error {
		value = e.Value.(string)
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Append appends suffix to the value at key and returns the new length.
// An absent key behaves as Set(key, suffix).
func (s *Store) Append(key, suffix string) (int, error) {
	var length int
	err := s.ks.Update(key, keyspace.TypeString,
		func() any { return "" },
		func(e *keyspace.Entry) (bool, error) {
			v := e.Value.(string) + suffix
			e.Value = v
			length = len(v)
			return false, nil
		})
	return length, err
}

// IncrBy increments the integer value of key by delta and returns the result.
// A fresh key counts from 0. A non-integer value is ErrNotANumber.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	var result int64
	err := s.ks.Update(key, keyspace.TypeString,
		func() any { return "0" },
		func(e *keyspace.Entry) (bool, error) {
			current, err := strconv.ParseInt(e.Value.(string), 10, 64)
			if err != nil {
				return false, fmt.Errorf("%w: %q", keyspace.ErrNotANumber, e.Value)
			}
			result = current + delta
			e.Value = strconv.FormatInt(result, 10)
			return false, nil
		})
	return result, err
}

// DecrBy decrements the integer value of key by delta.
func (s *Store) DecrBy(key string, delta int64) (int64, error) {
	return s.IncrBy(key, -delta)
}

// StrLen returns the length of the string at key, 0 for an absent key.
func (s *Store) StrLen(key string) (int, error) {
	var length int
	err := s.ks.View(key, keyspace.TypeString, func(e *keyspace.Entry) error {
		length = len(e.Value.(string))
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return 0, nil
	}
	return length, err
}
