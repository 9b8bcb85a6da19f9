// Package logstream implements the message log on Redis Streams. Each
// configured stream key is one partition; the Redis entry ID doubles as the
// partition offset and carries the production timestamp.
package logstream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"barfly/internal/domain"
)

const (
	defaultBlockTimeout = 5 * time.Second
	defaultBatchSize    = 32
	reconnectDelay      = 2 * time.Second
)

// Config describes the Redis connection and the streams to consume.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Streams are the stream keys, in partition order: Streams[i] is
	// partition i.
	Streams      []string
	BlockTimeout time.Duration
	BatchSize    int
	Logger       *slog.Logger
}

// Redis consumes records from one or more Redis Streams.
type Redis struct {
	client  *redis.Client
	streams []string
	block   time.Duration
	batch   int64
	logger  *slog.Logger

	mu     sync.Mutex
	lastID []string // per-stream read position
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) (*Redis, error) {
	if len(cfg.Streams) == 0 {
		return nil, fmt.Errorf("logstream: at least one stream key required")
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{
		client:  client,
		streams: cfg.Streams,
		block:   cfg.BlockTimeout,
		batch:   int64(cfg.BatchSize),
		logger:  cfg.Logger,
	}, nil
}

// Subscribe verifies the connection, positions every stream at its current
// tail, and starts the read loop. Records older than the subscription moment
// are never delivered.
func (r *Redis) Subscribe(ctx context.Context, handler domain.RecordHandler) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("logstream: ping: %w", err)
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return fmt.Errorf("logstream: already subscribed")
	}

	// "$" asks XREAD for entries appended after this call; once entries
	// arrive we track concrete IDs ourselves.
	r.lastID = make([]string, len(r.streams))
	for i := range r.lastID {
		r.lastID[i] = "$"
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.readLoop(loopCtx, handler)
	r.logger.Info("subscribed to message log", "streams", strings.Join(r.streams, ","))
	return nil
}

// Disconnect stops the read loop and closes the connection.
func (r *Redis) Disconnect() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return r.client.Close()
}

func (r *Redis) readLoop(ctx context.Context, handler domain.RecordHandler) {
	defer close(r.done)

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: r.xreadStreams(),
			Count:   r.batch,
			Block:   r.block,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			r.logger.Warn("log read failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		for _, stream := range res {
			partition := r.partitionOf(stream.Stream)
			for _, entry := range stream.Messages {
				r.setLastID(partition, entry.ID)
				handler(domain.InboundRecord{
					Partition:  partition,
					Offset:     entry.ID,
					ProducedAt: entryTime(entry.ID),
					Raw:        entryPayload(entry),
				})
			}
		}
	}
}

// xreadStreams builds the XREAD argument: all keys followed by all positions.
func (r *Redis) xreadStreams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	args := make([]string, 0, 2*len(r.streams))
	args = append(args, r.streams...)
	args = append(args, r.lastID...)
	return args
}

func (r *Redis) setLastID(partition int, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if partition >= 0 && partition < len(r.lastID) {
		r.lastID[partition] = id
	}
}

func (r *Redis) partitionOf(stream string) int {
	for i, s := range r.streams {
		if s == stream {
			return i
		}
	}
	return -1
}

// entryTime extracts the production time from a stream entry ID
// ("<unix-ms>-<seq>"). A malformed ID yields the zero time, which the age
// filters treat as ancient.
func entryTime(id string) time.Time {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

// entryPayload pulls the message body out of the entry values. Producers
// write the JSON document under the "payload" field.
func entryPayload(entry redis.XMessage) []byte {
	v, ok := entry.Values["payload"]
	if !ok {
		return nil
	}
	switch p := v.(type) {
	case string:
		return []byte(p)
	case []byte:
		return p
	default:
		return []byte(fmt.Sprint(p))
	}
}
