package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type definitions
const (
	TypeMemberSync = "member_sync"
)

// MemberSyncPayload is the downstream fan-out message: one per
// qualifying workspace member. Consumers must be idempotent; delivery is
// at-least-once.
type MemberSyncPayload struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	MemberID    uuid.UUID `json:"member_id"`
}

// NewMemberSyncTask creates a member sync task
func NewMemberSyncTask(workspaceID, memberID uuid.UUID) (*asynq.Task, error) {
	payload := MemberSyncPayload{
		WorkspaceID: workspaceID,
		MemberID:    memberID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMemberSync, data), nil
}

// FanoutEnqueuer sends downstream fan-out events to the task queue.
type FanoutEnqueuer interface {
	EnqueueMemberSync(ctx context.Context, workspaceID uuid.UUID, memberIDs []uuid.UUID) error
}

type asynqFanout struct {
	client    *asynq.Client
	batchSize int
}

// NewFanout creates a fan-out enqueuer over an asynq client. batchSize
// bounds how many tasks are submitted per batch.
func NewFanout(client *asynq.Client, batchSize int) FanoutEnqueuer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &asynqFanout{client: client, batchSize: batchSize}
}

// EnqueueMemberSync enqueues one member sync task per member, in bounded
// batches. Individual enqueue failures are collected so one bad member
// does not mask the rest.
func (f *asynqFanout) EnqueueMemberSync(ctx context.Context, workspaceID uuid.UUID, memberIDs []uuid.UUID) error {
	var enqueueErrs []error
	for _, batch := range chunkUUIDs(memberIDs, f.batchSize) {
		for _, memberID := range batch {
			task, err := NewMemberSyncTask(workspaceID, memberID)
			if err != nil {
				enqueueErrs = append(enqueueErrs, err)
				continue
			}
			if _, err := f.client.EnqueueContext(ctx, task, asynq.Queue("fanout")); err != nil {
				enqueueErrs = append(enqueueErrs, fmt.Errorf("failed to enqueue member sync for %s: %v", memberID, err))
			}
		}
		log.Printf("fanout: enqueued member sync batch of %d for workspace %s", len(batch), workspaceID)
	}
	if len(enqueueErrs) > 0 {
		return fmt.Errorf("member sync fanout failed for %d of %d members: %w", len(enqueueErrs), len(memberIDs), errors.Join(enqueueErrs...))
	}
	return nil
}

func chunkUUIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	var chunks [][]uuid.UUID
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
