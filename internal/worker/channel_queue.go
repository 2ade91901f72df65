package worker

import (
	"context"
	"errors"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// ErrQueueFull is returned when the in-process queue cannot take more requests.
var ErrQueueFull = errors.New("render queue full")

// ChannelQueue is an in-process RenderQueue for single-node deployments and tests.
type ChannelQueue struct {
	ch chan domain.RenderRequest
}

func NewChannelQueue(size int) *ChannelQueue {
	if size < 1 {
		size = 1
	}
	return &ChannelQueue{ch: make(chan domain.RenderRequest, size)}
}

// Publish never blocks; a full buffer is reported as ErrQueueFull and the
// sweeper picks the record up later.
func (q *ChannelQueue) Publish(ctx context.Context, req domain.RenderRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Consume(ctx context.Context) (domain.RenderRequest, error) {
	select {
	case <-ctx.Done():
		return domain.RenderRequest{}, ctx.Err()
	case req := <-q.ch:
		return req, nil
	}
}

// Len returns the number of queued requests.
func (q *ChannelQueue) Len() int {
	return len(q.ch)
}
