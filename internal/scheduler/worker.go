package scheduler

import (
	"context"
	"fmt"

	crmdomain "conversa_backend/internal/crmsync/domain"
	crmservice "conversa_backend/internal/crmsync/service"
	"conversa_backend/internal/followup"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	crm     *crmservice.Service
	scanner *followup.Scanner
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, crm *crmservice.Service, scanner *followup.Scanner, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		crm:     crm,
		scanner: scanner,
		log:     log,
	}

	mux.HandleFunc(TaskLeadUpsert, w.handleLeadUpsert)
	mux.HandleFunc(TaskFollowUpSend, w.handleFollowUpSend)

	return w, nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadUpsert(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadUpsertPayload(task)
	if err != nil {
		return err
	}

	result, err := w.crm.UpsertLead(ctx, crmdomain.UpsertInput{
		Phone:         payload.Phone,
		FullName:      payload.FullName,
		ChannelOrigin: payload.ChannelOrigin,
		Transcript:    payload.Transcript,
	})
	if err != nil {
		// Returning the error hands the task back to asynq for retry.
		return err
	}

	w.log.Info("lead upsert task completed",
		"phone", payload.Phone, "contact_id", result.ContactID, "created", result.Created)
	return nil
}

func (w *Worker) handleFollowUpSend(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpSendPayload(task)
	if err != nil {
		return err
	}

	sent, err := w.scanner.FollowUp(ctx, payload.Phone)
	if err != nil {
		return err
	}
	if !sent {
		w.log.Info("follow-up task skipped", "phone", payload.Phone)
	}
	return nil
}
