package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultsUnmarshal(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults failed: %v", err)
	}
	if cfg.Poller.Interval() != 2*time.Second {
		t.Fatalf("poller interval want 2s got %s", cfg.Poller.Interval())
	}
	if cfg.Notify.ReconcileCron != "@every 1m" {
		t.Fatalf("reconcile cron default mismatch: %q", cfg.Notify.ReconcileCron)
	}
	if cfg.Backend.NotificationPath != "/api/v1/payments/mercadopago/notifications" {
		t.Fatalf("notification path default mismatch: %q", cfg.Backend.NotificationPath)
	}
	if cfg.Queue.Queues["critical"] != 5 {
		t.Fatalf("queue weights not loaded: %v", cfg.Queue.Queues)
	}
	if len(cfg.Upload.AllowedTypes) != 4 {
		t.Fatalf("upload allowed types want 4 got %d", len(cfg.Upload.AllowedTypes))
	}
}

func TestDurationFallbacks(t *testing.T) {
	if got := (PollerConfig{}).Interval(); got != 2*time.Second {
		t.Fatalf("zero poller interval should fall back to 2s, got %s", got)
	}
	if got := (PollerConfig{IntervalMS: 500}).Interval(); got != 500*time.Millisecond {
		t.Fatalf("poller interval want 500ms got %s", got)
	}
	if got := (PollerConfig{}).WaitTimeout(); got != 0 {
		t.Fatalf("wait timeout default should be unbounded, got %s", got)
	}
	if got := (BackendConfig{}).Timeout(); got != 12*time.Second {
		t.Fatalf("backend timeout want 12s got %s", got)
	}
	if got := (NotifyConfig{BurstWindowSeconds: 5}).BurstWindow(); got != 5*time.Second {
		t.Fatalf("burst window want 5s got %s", got)
	}
}
