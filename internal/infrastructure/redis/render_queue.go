package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// DefaultRenderQueueKey is the list that carries render requests.
const DefaultRenderQueueKey = "visa:render:queue"

// RenderQueue is a domain.RenderQueue backed by a Redis list. Producers LPUSH,
// the worker BRPOPs, so requests are served oldest first.
type RenderQueue struct {
	client *Client
	key    string
	block  time.Duration
}

func NewRenderQueue(client *Client, key string) *RenderQueue {
	if key == "" {
		key = DefaultRenderQueueKey
	}
	return &RenderQueue{client: client, key: key, block: 5 * time.Second}
}

func (q *RenderQueue) Publish(ctx context.Context, req domain.RenderRequest) error {
	payload, err := encodeRequest(req)
	if err != nil {
		return err
	}
	if err := q.client.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue render request: %w", err)
	}
	return nil
}

// Consume blocks until a request arrives or ctx is done.
func (q *RenderQueue) Consume(ctx context.Context) (domain.RenderRequest, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RenderRequest{}, err
		}
		res, err := q.client.rdb.BRPop(ctx, q.block, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return domain.RenderRequest{}, fmt.Errorf("failed to dequeue render request: %w", err)
		}
		// res is [key, value]
		req, err := decodeRequest(res[1])
		if err != nil {
			q.client.logger.Warn("dropping malformed render request",
				slog.String("payload", res[1]),
				slog.String("error", err.Error()),
			)
			continue
		}
		return req, nil
	}
}

// Len returns the queue depth.
func (q *RenderQueue) Len(ctx context.Context) (int64, error) {
	return q.client.rdb.LLen(ctx, q.key).Result()
}

func encodeRequest(req domain.RenderRequest) (string, error) {
	if req.CandidateID == "" {
		return "", errors.New("render request without candidate id")
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode render request: %w", err)
	}
	return string(b), nil
}

func decodeRequest(payload string) (domain.RenderRequest, error) {
	var req domain.RenderRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return req, err
	}
	if req.CandidateID == "" {
		return req, errors.New("missing candidate id")
	}
	return req, nil
}
