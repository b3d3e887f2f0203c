package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const requestsKey = "turn-requests"

// ActionQueue manages the global queue of turn requests.
type ActionQueue struct {
	client *Client
}

func NewActionQueue(client *Client) *ActionQueue {
	return &ActionQueue{
		client: client,
	}
}

// Enqueue adds a turn request to the end of the global queue.
func (q *ActionQueue) Enqueue(ctx context.Context, req *Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	return nil
}

// Dequeue removes and returns the next request, or nil when the queue is empty.
func (q *ActionQueue) Dequeue(ctx context.Context) (*Request, error) {
	result, err := q.client.rdb.LPop(ctx, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	return FromJSON([]byte(result))
}

// BlockingDequeue blocks until a request is available, then returns it.
func (q *ActionQueue) BlockingDequeue(ctx context.Context) (*Request, error) {
	result, err := q.client.rdb.BLPop(ctx, 0, requestsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return FromJSON([]byte(result[1]))
}

// Depth returns the number of requests in the global queue.
func (q *ActionQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, requestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}
