// Package queue composes the list and sorted-set stores into a job queue
// with three fixed priorities, retry accounting with a dead-letter list, and
// delayed jobs promoted by an externally driven poll. It holds no state of
// its own besides what it stores as keyspace entries.
package queue

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eternalApril/nebula/keyspace"
	"github.com/eternalApril/nebula/store"
)

// Priority orders job delivery. Dequeue always drains high before normal,
// normal before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// priorities in dequeue order.
var priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Job is the serialized unit of work. Payload is opaque to the engine.
type Job struct {
	ID         string    `json:"id"`
	Payload    any       `json:"payload"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

// Config bounds retry and processing behavior.
type Config struct {
	// MaxRetries is the number of nacks after which a job moves to the
	// dead-letter list.
	MaxRetries int
	// ProcessingTimeout is the TTL of the processing marker written by
	// Dequeue. When it lapses the marker disappears and the job is
	// considered lost by this engine (no reaper, by contract).
	ProcessingTimeout time.Duration
}

// DefaultConfig returns the retry/processing defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		ProcessingTimeout: 30 * time.Second,
	}
}

// Queue is the job-queue facade over a shared store.
type Queue struct {
	store  *store.Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a queue facade. A nil logger falls back to a no-op logger.
func New(s *store.Store, cfg Config, logger *zap.Logger) *Queue {
	return NewWithClock(s, cfg, logger, time.Now)
}

// NewWithClock creates a queue facade with an injected clock.
func NewWithClock(s *store.Store, cfg Config, logger *zap.Logger, now func() time.Time) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = DefaultConfig().ProcessingTimeout
	}
	return &Queue{store: s, cfg: cfg, logger: logger, now: now}
}

func activeKey(name string, p Priority) string {
	return "queue:" + name + ":" + string(p)
}

func processingKey(name, id string) string {
	return "queue:" + name + ":processing:" + id
}

func delayedKey(name string) string {
	return "queue:" + name + ":delayed"
}

func deadKey(name string) string {
	return "queue:" + name + ":dead"
}

// Enqueue serializes a new job and pushes it onto the priority list of the
// named queue. The job id is generated.
func (q *Queue) Enqueue(name string, payload any, p Priority) (*Job, error) {
	if !p.valid() {
		return nil, fmt.Errorf("unknown priority %q", p)
	}
	job := &Job{
		ID:         uuid.NewString(),
		Payload:    payload,
		Priority:   p,
		EnqueuedAt: q.now(),
	}
	if err := q.push(name, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) push(name string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = q.store.RPush(activeKey(name, job.Priority), string(data))
	return err
}

// Dequeue pops the next job, draining the highest-priority non-empty list
// first, and moves it into a processing marker with the processing-timeout
// TTL. An empty queue yields (nil, false, nil).
func (q *Queue) Dequeue(name string) (*Job, bool, error) {
	for _, p := range priorities {
		raw, ok, err := q.store.LPop(activeKey(name, p))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, false, fmt.Errorf("unmarshal job: %w", err)
		}
		if err := q.store.SetWithTTL(processingKey(name, job.ID), raw, q.cfg.ProcessingTimeout); err != nil {
			return nil, false, err
		}
		return &job, true, nil
	}
	return nil, false, nil
}

// Ack acknowledges a dequeued job, deleting its processing marker.
// Returns false when no marker exists (unknown id or lapsed timeout).
func (q *Queue) Ack(name, id string) bool {
	return q.store.Delete(processingKey(name, id))
}

// Nack reports a processing failure. The job's attempt counter is bumped;
// it is re-enqueued onto its priority list until MaxRetries is reached, then
// moved to the dead-letter list. Returns ErrKeyNotFound when no processing
// marker exists for the id.
func (q *Queue) Nack(name, id string) error {
	raw, ok, err := q.store.Get(processingKey(name, id))
	if err != nil {
		return err
	}
	if !ok {
		return keyspace.ErrKeyNotFound
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	job.Attempts++
	q.store.Delete(processingKey(name, id))

	if job.Attempts >= q.cfg.MaxRetries {
		data, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		if _, err := q.store.RPush(deadKey(name), string(data)); err != nil {
			return err
		}
		q.logger.Warn("job moved to dead-letter list",
			zap.String("queue", name),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
		)
		return nil
	}

	return q.push(name, &job)
}

// EnqueueDelayed serializes a new job into the delayed sorted set, scored by
// its execution time. It becomes runnable through PromoteDue.
func (q *Queue) EnqueueDelayed(name string, payload any, p Priority, runAt time.Time) (*Job, error) {
	if !p.valid() {
		return nil, fmt.Errorf("unknown priority %q", p)
	}
	job := &Job{
		ID:         uuid.NewString(),
		Payload:    payload,
		Priority:   p,
		EnqueuedAt: q.now(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	_, err = q.store.ZAdd(delayedKey(name), store.ScoredMember{
		Member: string(data),
		Score:  float64(runAt.Unix()),
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// PromoteDue moves every delayed job with an execution time at or before now
// onto its priority list. The delayed members are popped in one atomic step,
// so concurrent pollers never promote the same job twice. Returns the number
// of jobs promoted.
func (q *Queue) PromoteDue(name string, now time.Time) (int, error) {
	due, err := q.store.ZPopRangeByScore(delayedKey(name), math.Inf(-1), float64(now.Unix()))
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, m := range due {
		var job Job
		if err := json.Unmarshal([]byte(m.Member), &job); err != nil {
			q.logger.Error("dropping undecodable delayed job",
				zap.String("queue", name),
				zap.Error(err),
			)
			continue
		}
		if _, err := q.store.RPush(activeKey(name, job.Priority), m.Member); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// Pending returns the number of runnable jobs at the given priority.
func (q *Queue) Pending(name string, p Priority) (int, error) {
	return q.store.LLen(activeKey(name, p))
}

// DelayedCount returns the number of jobs waiting in the delayed set.
func (q *Queue) DelayedCount(name string) (int, error) {
	return q.store.ZCard(delayedKey(name))
}

// DeadLetters returns the jobs parked on the dead-letter list, oldest first.
func (q *Queue) DeadLetters(name string) ([]*Job, error) {
	raws, err := q.store.LRange(deadKey(name), 0, -1)
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Processing reports whether a processing marker exists for the id.
func (q *Queue) Processing(name, id string) bool {
	return q.store.Exists(processingKey(name, id))
}
