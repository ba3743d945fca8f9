package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/autoposter/internal/models"
)

// AsynqDispatcher keeps armed slots in Redis so they survive restarts.
// The server runs with a concurrency of one so posts never overlap.
type AsynqDispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	enq       enqueuer
	tasks     taskInspector
	redis     asynq.RedisConnOpt
	firer     SlotFirer
}

func NewAsynqDispatcher(redis asynq.RedisConnOpt, firer SlotFirer) *AsynqDispatcher {
	client := asynq.NewClient(redis)
	inspector := asynq.NewInspector(redis)
	return &AsynqDispatcher{client: client, inspector: inspector, enq: client, tasks: inspector, redis: redis, firer: firer}
}

func (d *AsynqDispatcher) Arm(ctx context.Context, slot models.ScheduleSlot) error {
	return EnqueueSlot(ctx, d.enq, d.tasks, slot)
}

func (d *AsynqDispatcher) Run(ctx context.Context) error {
	server := asynq.NewServer(d.redis, asynq.Config{
		Concurrency:     1,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeFireSlot, d.HandleFireSlotTask)

	slog.Info("Starting the Asynq server...")
	if err := server.Start(mux); err != nil {
		return fmt.Errorf("could not start Asynq server: %w", err)
	}
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func (d *AsynqDispatcher) Close() error {
	var errs []error
	if d.inspector != nil {
		errs = append(errs, d.inspector.Close())
	}
	if d.client != nil {
		errs = append(errs, d.client.Close())
	}
	return errors.Join(errs...)
}

func (d *AsynqDispatcher) HandleFireSlotTask(ctx context.Context, task *asynq.Task) error {
	var payload FireSlotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeFireSlot, err, asynq.SkipRetry)
	}
	if payload.SlotID == "" {
		return fmt.Errorf("%s payload without slot id: %w", TaskTypeFireSlot, asynq.SkipRetry)
	}
	return d.firer.Fire(ctx, payload.SlotID)
}
