package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 支付通知等高优先级任务
	CriticalQueue = constants.QueueCritical

	defaultMaxRetry = 8
)

// Client 队列客户端封装
type Client struct {
	client        *asynq.Client
	enabled       bool
	defaultQueue  string
	priorityQueue string
	maxRetry      int
}

// NewClient 创建队列客户端，未启用时所有入队操作为空操作
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue, priorityQueue: DefaultQueue}, nil
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &Client{
		client:        asynq.NewClient(buildRedisOpt(cfg)),
		enabled:       true,
		defaultQueue:  DefaultQueue,
		priorityQueue: resolvePriorityQueue(cfg.Queues),
		maxRetry:      maxRetry,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueNotificationForward 推送通知转发任务；同一台账记录同时只会有一个任务在队列中
func (c *Client) EnqueueNotificationForward(payload NotificationForwardPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	if payload.NotificationID == 0 {
		return fmt.Errorf("notification id is required")
	}
	task, err := NewNotificationForwardTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{
		asynq.Queue(c.priorityQueue),
		asynq.MaxRetry(c.maxRetry),
		asynq.TaskID(NotificationForwardTaskID(payload.NotificationID)),
	}, opts...)
	_, err = c.client.Enqueue(task, options...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 6, DefaultQueue: 3}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func resolvePriorityQueue(queues map[string]int) string {
	if len(queues) == 0 {
		return CriticalQueue
	}
	if _, ok := queues[CriticalQueue]; ok {
		return CriticalQueue
	}
	return DefaultQueue
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
