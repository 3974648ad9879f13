package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher appends events to stream, keeping roughly maxLen entries.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: event.values(),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Trim caps the stream at maxLen entries.
func (p *StreamPublisher) Trim(ctx context.Context) (int64, error) {
	if p.maxLen <= 0 {
		return 0, nil
	}
	return p.client.XTrimMaxLenApprox(ctx, p.stream, p.maxLen, 0).Result()
}
