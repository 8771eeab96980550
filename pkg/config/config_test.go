package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.EventBroker != "kafka" || cfg.DefaultChannel != "delivery" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.ReconcileDebounce != 150*time.Millisecond {
		t.Errorf("expected 150ms debounce, got %s", cfg.ReconcileDebounce)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("expected 30m idle timeout, got %s", cfg.SessionIdleTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RECONCILE_DEBOUNCE", "1s")
	t.Setenv("EVENT_BROKER", "rabbitmq")
	t.Setenv("LOCK_TABLE_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReconcileDebounce != time.Second || cfg.EventBroker != "rabbitmq" || cfg.LockTableName != "" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("RECONCILE_DEBOUNCE", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for bad duration")
	}
}
