// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list that carries game action records to the historian.
const DefaultQueueName = "codebreak_actions"

// DefaultBacklog is how many records may wait for Redis before new ones are dropped.
const DefaultBacklog = 1024

// Connect opens a Redis client for addr and checks it with a PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher pushes game action records onto a Redis list. Record hands records
// to a background goroutine so rooms never wait on the network.
type Publisher struct {
	rdb   redis.Cmdable
	queue string
	log   *logrus.Entry

	mu      sync.RWMutex
	closed  bool
	backlog chan models.GameActionRecord
	done    chan struct{}
}

// NewPublisher starts a publisher writing to queue. An empty queue uses DefaultQueueName.
func NewPublisher(rdb redis.Cmdable, queue string, logger *logrus.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Publisher{
		rdb:     rdb,
		queue:   queue,
		log:     logger.WithField("component", "publisher"),
		backlog: make(chan models.GameActionRecord, DefaultBacklog),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Record queues rec for publishing. It never blocks; when the backlog is full
// or the publisher is closed the record is dropped.
func (p *Publisher) Record(rec models.GameActionRecord) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.backlog <- rec:
	default:
		p.log.WithFields(logrus.Fields{
			"room":   rec.RoomCode,
			"action": rec.ActionType,
		}).Warn("action backlog full, dropping record")
	}
}

// Publish serializes rec to JSON and pushes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, rec models.GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	for rec := range p.backlog {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.Publish(ctx, rec); err != nil {
			p.log.WithError(err).WithField("action", rec.ActionType).Warn("publish failed")
		}
		cancel()
	}
}

// Close stops accepting records and waits until the backlog has been pushed.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.backlog)
	}
	p.mu.Unlock()
	<-p.done
}
