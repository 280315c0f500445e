package store

import (
	"sort"

	"github.com/eternalApril/nebula/keyspace"
)

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSet keeps unique members ordered by score ascending, ties broken by
// byte-lexicographic member order. The container is not thread-safe on its
// own; the keyspace lock guards it.
type SortedSet struct {
	members map[string]float64
}

// NewSortedSet creates an empty sorted-set container.
func NewSortedSet() *SortedSet {
	return &SortedSet{members: make(map[string]float64)}
}

// Add upserts members. Returns the number of new members.
func (z *SortedSet) Add(members ...ScoredMember) int {
	added := 0
	for _, m := range members {
		if _, ok := z.members[m.Member]; !ok {
			added++
		}
		z.members[m.Member] = m.Score
	}
	return added
}

// Remove deletes members. Returns the number removed.
func (z *SortedSet) Remove(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, ok := z.members[m]; ok {
			delete(z.members, m)
			removed++
		}
	}
	return removed
}

// Card returns the number of members.
func (z *SortedSet) Card() int {
	return len(z.members)
}

// Members returns a copy of the member-to-score mapping.
func (z *SortedSet) Members() map[string]float64 {
	out := make(map[string]float64, len(z.members))
	for m, s := range z.members {
		out[m] = s
	}
	return out
}

// sorted returns all members ordered by (score, member).
func (z *SortedSet) sorted() []ScoredMember {
	out := make([]ScoredMember, 0, len(z.members))
	for member, score := range z.members {
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// clampRank resolves negative rank indices and clamps them to [0, n).
// Returns ok=false when the resolved window is empty.
func clampRank(start, stop, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

// zview runs fn on the sorted set at key, treating an absent key as empty.
func (s *Store) zview(key string, fn func(z *SortedSet)) error {
	err := s.ks.View(key, keyspace.TypeZSet, func(e *keyspace.Entry) error {
		fn(e.Value.(*SortedSet))
		return nil
	})
	if err == keyspace.ErrKeyNotFound {
		return nil
	}
	return err
}

// zupdate runs fn on the existing sorted set at key, deleting the key when
// fn drains it. An absent key is a no-op.
func (s *Store) zupdate(key string, fn func(z *SortedSet)) error {
	err := s.ks.Update(key, keyspace.TypeZSet, nil,
		func(e *keyspace.Entry) (bool, error) {
			z := e.Value.(*SortedSet)
			fn(z)
			return len(z.members) == 0, nil
		})
	if err == keyspace.ErrKeyNotFound {
		return nil
	}
	return err
}

// ZAdd upserts members into the sorted set at key, creating it when absent.
// An existing member's score is overwritten. Returns the number of new members.
func (s *Store) ZAdd(key string, members ...ScoredMember) (int, error) {
	var added int
	err := s.ks.Update(key, keyspace.TypeZSet,
		func() any { return NewSortedSet() },
		func(e *keyspace.Entry) (bool, error) {
			added = e.Value.(*SortedSet).Add(members...)
			return false, nil
		})
	return added, err
}

// ZIncrBy increments the score of member by delta, creating the member
// (from score 0) and the set when absent. Returns the new score.
func (s *Store) ZIncrBy(key string, delta float64, member string) (float64, error) {
	var score float64
	err := s.ks.Update(key, keyspace.TypeZSet,
		func() any { return NewSortedSet() },
		func(e *keyspace.Entry) (bool, error) {
			z := e.Value.(*SortedSet)
			z.members[member] += delta
			score = z.members[member]
			return false, nil
		})
	return score, err
}

// ZRem removes members from the sorted set at key.
// A drained set deletes its key. Returns the number removed.
func (s *Store) ZRem(key string, members ...string) (int, error) {
	var removed int
	err := s.zupdate(key, func(z *SortedSet) {
		for _, m := range members {
			if _, ok := z.members[m]; ok {
				delete(z.members, m)
				removed++
			}
		}
	})
	return removed, err
}

// ZScore returns the score of member in the sorted set at key.
func (s *Store) ZScore(key, member string) (float64, bool, error) {
	var (
		score float64
		ok    bool
	)
	err := s.zview(key, func(z *SortedSet) {
		score, ok = z.members[member]
	})
	return score, ok, err
}

// ZRank returns the 0-based rank of member, ordered by ascending score.
// With reverse=true the rank counts from the highest score instead.
func (s *Store) ZRank(key, member string, reverse bool) (int, bool, error) {
	var (
		rank  int
		found bool
	)
	err := s.zview(key, func(z *SortedSet) {
		score, ok := z.members[member]
		if !ok {
			return
		}
		found = true
		for m, sc := range z.members {
			if reverse {
				if sc > score || (sc == score && m > member) {
					rank++
				}
			} else {
				if sc < score || (sc == score && m < member) {
					rank++
				}
			}
		}
	})
	return rank, found, err
}

// ZRange returns members by rank window [start, stop], negative indices
// counting from the end. With withScores=false the scores are zeroed.
func (s *Store) ZRange(key string, start, stop int, withScores bool) ([]ScoredMember, error) {
	var out []ScoredMember
	err := s.zview(key, func(z *SortedSet) {
		sorted := z.sorted()
		lo, hi, ok := clampRank(start, stop, len(sorted))
		if !ok {
			return
		}
		out = make([]ScoredMember, hi-lo+1)
		copy(out, sorted[lo:hi+1])
		if !withScores {
			for i := range out {
				out[i].Score = 0
			}
		}
	})
	return out, err
}

// ZRangeByScore returns members with min <= score <= max, ascending.
func (s *Store) ZRangeByScore(key string, min, max float64) ([]ScoredMember, error) {
	var out []ScoredMember
	err := s.zview(key, func(z *SortedSet) {
		for _, m := range z.sorted() {
			if m.Score >= min && m.Score <= max {
				out = append(out, m)
			}
		}
	})
	return out, err
}

// ZCount returns the number of members with min <= score <= max.
func (s *Store) ZCount(key string, min, max float64) (int, error) {
	var count int
	err := s.zview(key, func(z *SortedSet) {
		for _, score := range z.members {
			if score >= min && score <= max {
				count++
			}
		}
	})
	return count, err
}

// ZCard returns the cardinality of the sorted set at key.
func (s *Store) ZCard(key string) (int, error) {
	var card int
	err := s.zview(key, func(z *SortedSet) {
		card = len(z.members)
	})
	return card, err
}

// ZPopMin removes and returns up to count members with the lowest scores.
// A drained set deletes its key.
func (s *Store) ZPopMin(key string, count int) ([]ScoredMember, error) {
	return s.zpop(key, count, false)
}

// ZPopMax removes and returns up to count members with the highest scores.
// A drained set deletes its key.
func (s *Store) ZPopMax(key string, count int) ([]ScoredMember, error) {
	return s.zpop(key, count, true)
}

func (s *Store) zpop(key string, count int, fromMax bool) ([]ScoredMember, error) {
	var out []ScoredMember
	err := s.zupdate(key, func(z *SortedSet) {
		if count <= 0 {
			count = 1
		}
		sorted := z.sorted()
		if count > len(sorted) {
			count = len(sorted)
		}
		out = make([]ScoredMember, count)
		for i := 0; i < count; i++ {
			if fromMax {
				out[i] = sorted[len(sorted)-1-i]
			} else {
				out[i] = sorted[i]
			}
			delete(z.members, out[i].Member)
		}
	})
	return out, err
}

// ZRemRangeByRank removes members by rank window [start, stop].
// Returns the number removed.
func (s *Store) ZRemRangeByRank(key string, start, stop int) (int, error) {
	var removed int
	err := s.zupdate(key, func(z *SortedSet) {
		sorted := z.sorted()
		lo, hi, ok := clampRank(start, stop, len(sorted))
		if !ok {
			return
		}
		for i := lo; i <= hi; i++ {
			delete(z.members, sorted[i].Member)
			removed++
		}
	})
	return removed, err
}

// ZRemRangeByScore removes members with min <= score <= max.
// Returns the number removed.
func (s *Store) ZRemRangeByScore(key string, min, max float64) (int, error) {
	var removed int
	err := s.zupdate(key, func(z *SortedSet) {
		for member, score := range z.members {
			if score >= min && score <= max {
				delete(z.members, member)
				removed++
			}
		}
	})
	return removed, err
}

// ZPopRangeByScore atomically removes and returns every member with
// min <= score <= max, ascending. Concurrent callers receive disjoint
// members, which is what delayed-job promotion relies on.
func (s *Store) ZPopRangeByScore(key string, min, max float64) ([]ScoredMember, error) {
	var out []ScoredMember
	err := s.zupdate(key, func(z *SortedSet) {
		for _, m := range z.sorted() {
			if m.Score >= min && m.Score <= max {
				out = append(out, m)
				delete(z.members, m.Member)
			}
		}
	})
	return out, err
}
