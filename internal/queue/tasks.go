package queue

import (
	"encoding/json"
	"fmt"

	"github.com/lotecorto/storefront/internal/constants"

	"github.com/hibiken/asynq"
)

// TaskNotificationForward 支付通知转发任务
const TaskNotificationForward = constants.TaskNotificationForward

// NotificationForwardPayload 通知转发任务载荷
type NotificationForwardPayload struct {
	NotificationID uint `json:"notification_id"`
}

// NewNotificationForwardTask 创建通知转发任务
func NewNotificationForwardTask(payload NotificationForwardPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationForward, body), nil
}

// ParseNotificationForwardPayload 解析任务载荷
func ParseNotificationForwardPayload(task *asynq.Task) (NotificationForwardPayload, error) {
	var payload NotificationForwardPayload
	if task == nil {
		return payload, fmt.Errorf("task is nil")
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.NotificationID == 0 {
		return payload, fmt.Errorf("notification id is required")
	}
	return payload, nil
}

// NotificationForwardTaskID 台账记录对应的任务 ID
func NotificationForwardTaskID(notificationID uint) string {
	return fmt.Sprintf("notification-forward-%d", notificationID)
}
