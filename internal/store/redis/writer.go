package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute
	exitsMaxLen      = 500
)

// Config configures the Redis store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key prefix, e.g. "xrp:"

	// Breaker settings; zero values use 5 failures / 10s.
	MaxFailures  int
	ResetTimeout time.Duration
}

// Store publishes evaluations and keeps the open position in Redis.
// Every call goes through a circuit breaker so an unreachable server
// fails fast instead of stalling the session loop.
type Store struct {
	client *goredis.Client
	keys   Keys
	cb     *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker returns the circuit breaker guarding the store.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// New creates a new Redis Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newStore(client, cfg), nil
}

func newStore(client *goredis.Client, cfg Config) *Store {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = 10 * time.Second
	}
	cb := NewCircuitBreaker(maxFailures, reset)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
	}
	return &Store{client: client, keys: Keys{Prefix: cfg.Prefix}, cb: cb}
}

// PublishEvaluation stores ev as the latest evaluation and publishes it.
func (s *Store) PublishEvaluation(ctx context.Context, ev *model.Evaluation) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	return s.cb.Execute(func() error {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, s.keys.LatestEvaluation(), data, defaultLatestTTL)
		pipe.Publish(ctx, s.keys.EvaluationChannel(), data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish evaluation: %w", err)
		}
		return nil
	})
}

// PublishExit appends ev to the exits stream and publishes it.
func (s *Store) PublishExit(ctx context.Context, ev model.ExitEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal exit: %w", err)
	}
	return s.cb.Execute(func() error {
		pipe := s.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: s.keys.Exits(),
			MaxLen: exitsMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, s.keys.ExitChannel(), data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish exit: %w", err)
		}
		return nil
	})
}

// SavePosition stores pos; a nil pos deletes the stored position.
func (s *Store) SavePosition(ctx context.Context, pos *model.Position) error {
	if pos == nil {
		return s.cb.Execute(func() error {
			if err := s.client.Del(ctx, s.keys.Position()).Err(); err != nil {
				return fmt.Errorf("redis DEL position: %w", err)
			}
			return nil
		})
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	return s.cb.Execute(func() error {
		if err := s.client.Set(ctx, s.keys.Position(), data, 0).Err(); err != nil {
			return fmt.Errorf("redis SET position: %w", err)
		}
		return nil
	})
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
