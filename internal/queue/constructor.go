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

// taskTimeout covers the longest pre-post delay, the post and the cool-down.
const taskTimeout = 3 * time.Hour

// slotQueue is the asynq queue slot tasks are enqueued on.
const slotQueue = "default"

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// EnqueueSlot schedules the slot at its firing time. The slot id is the task id,
// so arming a slot whose task is still waiting or running is a no-op. Callers
// only arm pending slots, so a task that already finished or was archived (a
// crash mid-fire with no retries left) is cleared and enqueued again.
func EnqueueSlot(ctx context.Context, client enqueuer, tasks taskInspector, slot models.ScheduleSlot) error {
	err := enqueueSlot(ctx, client, slot)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		if !taskFinished(tasks, slot.ID) {
			slog.Info("Slot already armed", "slot", slot.ID)
			return nil
		}
		if err := tasks.DeleteTask(slotQueue, slot.ID); err != nil {
			return fmt.Errorf("clear finished task %s: %w", slot.ID, err)
		}
		slog.Warn("Re-arming pending slot whose task already ended", "slot", slot.ID)
		err = enqueueSlot(ctx, client, slot)
	}
	if err != nil {
		return err
	}

	slog.Info("Slot armed", "slot", slot.ID, "firing_time", slot.FiringTime)
	return nil
}

func enqueueSlot(ctx context.Context, client enqueuer, slot models.ScheduleSlot) error {
	taskPayload, err := json.Marshal(FireSlotPayload{SlotID: slot.ID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeFireSlot, taskPayload)

	_, err = client.EnqueueContext(ctx, task,
		asynq.TaskID(slot.ID),
		asynq.ProcessAt(slot.FiringTime),
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
		asynq.Queue(slotQueue),
	)
	return err
}

func taskFinished(tasks taskInspector, id string) bool {
	if tasks == nil {
		return false
	}
	info, err := tasks.GetTaskInfo(slotQueue, id)
	if err != nil {
		slog.Warn("Unable to inspect slot task", "slot", id, "error", err)
		return false
	}
	return info.State == asynq.TaskStateArchived || info.State == asynq.TaskStateCompleted
}
