package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskFollowUpEntryProcess = "followup.entry.process"

const TaskTemplateApprovalCheck = "templates.approval.check"

type FollowUpEntryProcessPayload struct {
	SequenceID string `json:"sequenceId"`
	TenantID   string `json:"tenantId"`
}

type TemplateApprovalCheckPayload struct {
	TenantID string `json:"tenantId"`
}

func NewFollowUpEntryProcessTask(payload FollowUpEntryProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpEntryProcess, data), nil
}

func ParseFollowUpEntryProcessPayload(task *asynq.Task) (FollowUpEntryProcessPayload, error) {
	var payload FollowUpEntryProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpEntryProcessPayload{}, err
	}
	return payload, nil
}

func NewTemplateApprovalCheckTask(payload TemplateApprovalCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTemplateApprovalCheck, data), nil
}

func ParseTemplateApprovalCheckPayload(task *asynq.Task) (TemplateApprovalCheckPayload, error) {
	var payload TemplateApprovalCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TemplateApprovalCheckPayload{}, err
	}
	return payload, nil
}
