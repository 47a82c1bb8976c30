// Package scheduler provides delayed task handling via asynq: idle-expiry
// sweeps and follow-up nudges for stalled conversations.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSweepExpired = "conversations.sweep"

const TaskFollowUp = "conversations.followup"

// SweepExpiredPayload triggers one sweep pass over idle conversations.
type SweepExpiredPayload struct {
	RequestedAt string `json:"requestedAt"`
}

// FollowUpPayload nudges a conversation that went quiet on a pending
// question. The question is carried so a stale task never re-asks a question
// the lead already answered.
type FollowUpPayload struct {
	ConversationID string `json:"conversationId"`
	Question       string `json:"question"`
	Channel        string `json:"channel"`
}

func NewSweepExpiredTask(payload SweepExpiredPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSweepExpired, data), nil
}

func ParseSweepExpiredPayload(task *asynq.Task) (SweepExpiredPayload, error) {
	var payload SweepExpiredPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SweepExpiredPayload{}, err
	}
	return payload, nil
}

func NewFollowUpTask(payload FollowUpPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUp, data), nil
}

func ParseFollowUpPayload(task *asynq.Task) (FollowUpPayload, error) {
	var payload FollowUpPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpPayload{}, err
	}
	return payload, nil
}
