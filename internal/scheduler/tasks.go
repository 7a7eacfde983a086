package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadUpsert = "crm.lead.upsert"

const TaskFollowUpSend = "followup.send"

type LeadUpsertPayload struct {
	Phone         string `json:"phone"`
	FullName      string `json:"fullName,omitempty"`
	ChannelOrigin string `json:"channelOrigin,omitempty"`
	Transcript    string `json:"transcript,omitempty"`
}

type FollowUpSendPayload struct {
	Phone string `json:"phone"`
}

func NewLeadUpsertTask(payload LeadUpsertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadUpsert, data), nil
}

func ParseLeadUpsertPayload(task *asynq.Task) (LeadUpsertPayload, error) {
	var payload LeadUpsertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadUpsertPayload{}, err
	}
	return payload, nil
}

func NewFollowUpSendTask(payload FollowUpSendPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpSend, data), nil
}

func ParseFollowUpSendPayload(task *asynq.Task) (FollowUpSendPayload, error) {
	var payload FollowUpSendPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpSendPayload{}, err
	}
	return payload, nil
}
