package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "DB_DRIVER", "AI_PROVIDER", "ASSISTANT_MENTION",
		"ASSISTANT_TRIGGERS", "AI_TIMEOUT_SECONDS", "AI_WORKERS", "CHAT_HISTORY_LIMIT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.ServerPort)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.DBDriver)
	}
	if cfg.AIProvider != "openai" {
		t.Errorf("expected openai provider, got %s", cfg.AIProvider)
	}
	if cfg.AssistantMention != "@assistant" {
		t.Errorf("expected @assistant mention, got %s", cfg.AssistantMention)
	}
	if len(cfg.AssistantTriggers) != 2 || cfg.AssistantTriggers[0] != "hey assistant" {
		t.Errorf("unexpected default triggers: %v", cfg.AssistantTriggers)
	}
	if cfg.AITimeout != 60*time.Second {
		t.Errorf("expected 60s AI timeout, got %v", cfg.AITimeout)
	}
	if cfg.AIWorkers != 4 {
		t.Errorf("expected 4 AI workers, got %d", cfg.AIWorkers)
	}
	if cfg.ChatHistoryLimit != 50 {
		t.Errorf("expected history limit 50, got %d", cfg.ChatHistoryLimit)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %s", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("ASSISTANT_MENTION", "@Buddy")
	t.Setenv("ASSISTANT_TRIGGERS", " Hey Buddy , buddy,, ")
	t.Setenv("STATUS_POLL_SECONDS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.ServerPort)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DBDriver)
	}
	if cfg.AssistantMention != "@buddy" {
		t.Errorf("expected lower-cased mention, got %s", cfg.AssistantMention)
	}
	if len(cfg.AssistantTriggers) != 2 || cfg.AssistantTriggers[0] != "hey buddy" || cfg.AssistantTriggers[1] != "buddy" {
		t.Errorf("unexpected triggers: %v", cfg.AssistantTriggers)
	}
	if cfg.StatusPollInterval != 10*time.Second {
		t.Errorf("expected 10s poll interval, got %v", cfg.StatusPollInterval)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing openai key", map[string]string{"AI_PROVIDER": "openai", "OPENAI_API_KEY": ""}},
		{"missing gemini key", map[string]string{"AI_PROVIDER": "gemini", "GEMINI_API_KEY": ""}},
		{"unknown provider", map[string]string{"AI_PROVIDER": "llama"}},
		{"unknown driver", map[string]string{"AI_PROVIDER": "none", "DB_DRIVER": "mysql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoad_InvalidInt(t *testing.T) {
	t.Setenv("AI_PROVIDER", "none")
	t.Setenv("AI_WORKERS", "notanumber")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AIWorkers != 4 {
		t.Errorf("expected default workers on invalid value, got %d", cfg.AIWorkers)
	}
}
