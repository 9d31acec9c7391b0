// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink stores batches of action records.
type Sink interface {
	InsertActions(ctx context.Context, recs []models.GameActionRecord) error
	MarkAbandoned(ctx context.Context, gameID string) error
}

// Options tunes the historian. Zero values fall back to the defaults below.
type Options struct {
	Queue       string
	BatchSize   int
	FlushDelay  time.Duration
	PopTimeout  time.Duration
	Inactivity  time.Duration
	SweepPeriod time.Duration
	Now         func() time.Time
}

const (
	DefaultBatchSize   = 20
	DefaultFlushDelay  = 500 * time.Millisecond
	DefaultPopTimeout  = 3 * time.Second
	DefaultInactivity  = 10 * time.Minute
	DefaultSweepPeriod = time.Minute
)

func (o Options) withDefaults() Options {
	if o.Queue == "" {
		o.Queue = "codebreak_actions"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushDelay <= 0 {
		o.FlushDelay = DefaultFlushDelay
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = DefaultPopTimeout
	}
	if o.Inactivity <= 0 {
		o.Inactivity = DefaultInactivity
	}
	if o.SweepPeriod <= 0 {
		o.SweepPeriod = DefaultSweepPeriod
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service drains the action queue into a Sink. Records are batched and flushed
// when the batch is full or on every flush tick. Games that go quiet while still
// in progress are marked abandoned.
type Service struct {
	rdb  redis.Cmdable
	sink Sink
	opts Options
	log  *logrus.Entry

	batchMu sync.Mutex
	batch   []models.GameActionRecord

	activityMu   sync.Mutex
	lastActivity map[string]time.Time
}

// New returns a historian reading from rdb and writing to sink.
func New(rdb redis.Cmdable, sink Sink, opts Options, logger *logrus.Logger) *Service {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		rdb:          rdb,
		sink:         sink,
		opts:         opts,
		log:          logger.WithField("component", "historian"),
		batch:        make([]models.GameActionRecord, 0, opts.BatchSize),
		lastActivity: make(map[string]time.Time),
	}
}

// Run consumes the queue until ctx is done, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	s.log.WithField("queue", s.opts.Queue).Info("historian started")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.readLoop(ctx)
	wg.Wait()

	// the run context is gone; give the final flush its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.log.Info("historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := s.rdb.BLPop(ctx, s.opts.PopTimeout, s.opts.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload
		if len(res) < 2 {
			continue
		}
		rec, ok := s.decode(res[1])
		if !ok {
			continue
		}
		s.append(ctx, rec)
	}
}

func (s *Service) decode(payload string) (models.GameActionRecord, bool) {
	var rec models.GameActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.log.WithError(err).Warn("invalid action record")
		return rec, false
	}
	if rec.RoomCode == "" || rec.ActionType == "" {
		s.log.Warn("action record without room or type")
		return rec, false
	}
	return rec, true
}

// append adds rec to the batch and flushes once the batch is full.
func (s *Service) append(ctx context.Context, rec models.GameActionRecord) {
	s.touch(rec)

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flush writes the pending batch. A failed batch is logged and dropped.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]models.GameActionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.InsertActions(ctx, pending); err != nil {
		s.log.WithError(err).WithField("actions", len(pending)).Error("flush failed")
		return
	}
	s.log.WithField("actions", len(pending)).Debug("flushed actions")
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// touch tracks the last action per game; a finished game is forgotten.
func (s *Service) touch(rec models.GameActionRecord) {
	if rec.GameID == "" {
		return
	}
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	if rec.ActionType == "game_finished" {
		delete(s.lastActivity, rec.GameID)
		return
	}
	s.lastActivity[rec.GameID] = s.opts.Now()
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep marks every game idle for longer than the inactivity window as abandoned
// and returns how many were marked.
func (s *Service) sweep(ctx context.Context) int {
	now := s.opts.Now()
	var stale []string
	s.activityMu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.opts.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.activityMu.Unlock()

	for _, id := range stale {
		if err := s.sink.MarkAbandoned(ctx, id); err != nil {
			s.log.WithError(err).WithField("game", id).Warn("failed to mark game abandoned")
			continue
		}
		s.log.WithField("game", id).Info("marked game abandoned")
	}
	return len(stale)
}
