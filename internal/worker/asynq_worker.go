package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/provider"
	"github.com/lotecorto/storefront/internal/queue"
	"github.com/lotecorto/storefront/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskNotificationForward, c.handleNotificationForward)
}

func (c *Consumer) handleNotificationForward(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_notification_forward_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseNotificationForwardPayload(task)
	if err != nil {
		logger.Warnw("worker_notification_forward_invalid_payload", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_notification_forward_skip_service_nil", "notification_id", payload.NotificationID)
		return nil
	}
	err = c.NotificationService.Forward(ctx, payload.NotificationID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotificationNotFound):
		logger.Debugw("worker_notification_forward_skip_not_found", "notification_id", payload.NotificationID)
		return nil
	default:
		// 重试耗尽后由补偿任务接手
		logger.Warnw("worker_notification_forward_failed", "notification_id", payload.NotificationID, "error", err)
		return err
	}
}
