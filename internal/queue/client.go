package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	publishMaxRetry = 5
	publishTimeout  = 2 * time.Minute
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueuePublishPhoto(ctx context.Context, payload PublishPhotoPayload) (*asynq.TaskInfo, error) {
	task, err := NewPublishPhotoTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(publishMaxRetry),
		asynq.Timeout(publishTimeout),
		asynq.TaskID(payload.UploadID),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
