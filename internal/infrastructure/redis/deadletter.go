package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// DeadLetterQueue is a Redis list holding inbound events that failed
// deserialization, for later inspection or replay.
type DeadLetterQueue struct {
	client   *redis.Client
	listName string
}

func NewDeadLetterQueue(client *redis.Client) *DeadLetterQueue {
	return &DeadLetterQueue{
		client:   client,
		listName: "runstatechange:deadletter",
	}
}

// Push appends the raw event to the end of the list
func (q *DeadLetterQueue) Push(ctx context.Context, raw []byte) error {
	return q.client.RPush(ctx, q.listName, raw).Err()
}
