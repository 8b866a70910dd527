package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// LoadPosition returns the stored position or nil when flat.
func (s *Store) LoadPosition(ctx context.Context) (*model.Position, error) {
	var raw []byte
	err := s.cb.Execute(func() error {
		b, err := s.client.Get(ctx, s.keys.Position()).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis GET position: %w", err)
		}
		raw = b
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}

	var pos model.Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return &pos, nil
}

// LatestEvaluation returns the last published evaluation, or nil if none
// is stored or it has expired.
func (s *Store) LatestEvaluation(ctx context.Context) (*model.Evaluation, error) {
	b, err := s.client.Get(ctx, s.keys.LatestEvaluation()).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", s.keys.LatestEvaluation(), err)
	}
	var ev model.Evaluation
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	return &ev, nil
}

// RecentExits reads up to count exit events from the exits stream, newest first.
func (s *Store) RecentExits(ctx context.Context, count int64) ([]model.ExitEvent, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.keys.Exits(), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", s.keys.Exits(), err)
	}
	out := make([]model.ExitEvent, 0, len(msgs))
	for _, msg := range msgs {
		ev, ok := decodeExit(msg)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeExit(msg goredis.XMessage) (model.ExitEvent, bool) {
	var ev model.ExitEvent
	data, ok := msg.Values["data"].(string)
	if !ok {
		log.Printf("[redis-reader] exit %s missing data field", msg.ID)
		return ev, false
	}
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		log.Printf("[redis-reader] exit %s unmarshal error: %v", msg.ID, err)
		return ev, false
	}
	return ev, true
}

// SubscribeEvaluations delivers evaluations published by another process to out.
// Blocks until ctx is cancelled.
func (s *Store) SubscribeEvaluations(ctx context.Context, out chan<- *model.Evaluation) error {
	sub := s.client.Subscribe(ctx, s.keys.EvaluationChannel())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", s.keys.EvaluationChannel(), err)
	}
	log.Printf("[redis-reader] subscribed to %s", s.keys.EvaluationChannel())

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.Evaluation
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[redis-reader] evaluation unmarshal error: %v", err)
				continue
			}
			select {
			case out <- &ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
