package scheduler

import (
	"context"
	"fmt"

	"conversa_backend/internal/conversation/ports"
	"conversa_backend/platform/config"
	platformredis "conversa_backend/platform/redis"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// The client is what the webhook pipeline sees as its LeadSyncer: enqueue
// now, sync in the worker.
var _ ports.LeadSyncer = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueUpsert schedules an asynchronous CRM upsert. Retries are left to
// asynq; the CRM client underneath is idempotent on the phone key.
func (c *Client) EnqueueUpsert(ctx context.Context, phone, name, channelOrigin, transcript string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewLeadUpsertTask(LeadUpsertPayload{
		Phone:         phone,
		FullName:      name,
		ChannelOrigin: channelOrigin,
		Transcript:    transcript,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5))
	return err
}

// EnqueueFollowUp schedules one follow-up send. The sweep produces these so
// provider latency never stretches a scan cycle; the worker runs the
// marker-gated send.
func (c *Client) EnqueueFollowUp(ctx context.Context, phone string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFollowUpSendTask(FollowUpSendPayload{Phone: phone})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(3))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	tlsConfig, err := platformredis.TLSConfigFromURL(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
