package config

import (
	"os"
	"testing"
)

func TestLoadDefault(t *testing.T) {
	oldHost := os.Getenv("SOURCE_HOST")
	oldLevel := os.Getenv("LOG_LEVEL")
	defer func() {
		os.Setenv("SOURCE_HOST", oldHost)
		os.Setenv("LOG_LEVEL", oldLevel)
	}()
	os.Unsetenv("SOURCE_HOST")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level to be 'info', got %s", cfg.LogLevel)
	}

	if cfg.Workspace.DataDir != "./data" {
		t.Errorf("Expected workspace data dir to be './data', got %s", cfg.Workspace.DataDir)
	}

	if cfg.Storage.Backend != "filesystem" {
		t.Errorf("Expected storage backend to be 'filesystem', got %s", cfg.Storage.Backend)
	}

	if cfg.Source.Enabled() {
		t.Error("Expected source server to be disabled with no host configured")
	}
}

func TestLoadFromEnv(t *testing.T) {
	oldHost := os.Getenv("SOURCE_HOST")
	oldLevel := os.Getenv("LOG_LEVEL")
	defer func() {
		os.Setenv("SOURCE_HOST", oldHost)
		os.Setenv("LOG_LEVEL", oldLevel)
	}()

	os.Setenv("SOURCE_HOST", "https://old.example.org")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config from env: %v", err)
	}

	if cfg.Source.Host != "https://old.example.org" {
		t.Errorf("Expected source host from env, got %s", cfg.Source.Host)
	}

	if !cfg.Source.Enabled() {
		t.Error("Expected source server to be enabled once a host is configured")
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level to be 'debug', got %s", cfg.LogLevel)
	}
}
