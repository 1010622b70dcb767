package config

import (
	"os"
	"path/filepath"
	"testing"
)

const baseConfig = `
port: "8080"
logLevel: "info"
redisAddr: "localhost:6379"
minioEndpoint: "localhost:9000"
minioAccessKey: "minioadmin"
minioSecretKey: "minioadmin"
minioBucket: "contracts"
jwtSecret: "dev-secret"
aiProvider: "ollama"
aiModel: "llama3.1"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SessionBackend != "jwt" {
		t.Fatalf("sessionBackend = %q, want jwt", cfg.SessionBackend)
	}
	if cfg.QueueStream != "contractlens:extract" {
		t.Fatalf("queueStream = %q", cfg.QueueStream)
	}
	if cfg.MaxUploadMB != 20 {
		t.Fatalf("maxUploadMB = %d, want 20", cfg.MaxUploadMB)
	}
	if len(cfg.AllowedExtensions) != 2 {
		t.Fatalf("allowedExtensions = %v", cfg.AllowedExtensions)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("CONTRACTLENS_QUEUE_CONCURRENCY", "8")
	t.Setenv("CONTRACTLENS_TRUST_FORWARDED", "true")

	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want env override", cfg.Port)
	}
	if cfg.RedisAddr != "redis.internal:6379" {
		t.Fatalf("redisAddr = %q", cfg.RedisAddr)
	}
	if cfg.QueueConcurrency != 8 {
		t.Fatalf("queueConcurrency = %d, want 8", cfg.QueueConcurrency)
	}
	if !cfg.TrustForwarded {
		t.Fatal("trustForwarded = false, want env override")
	}
}

func TestValidateConfigRejectsJWTWithoutSecret(t *testing.T) {
	cfg := FileConfig{
		Port:           "8080",
		RedisAddr:      "localhost:6379",
		MinioEndpoint:  "localhost:9000",
		MinioBucket:    "contracts",
		SessionBackend: "jwt",
		AIProvider:     "ollama",
		AIModel:        "llama3.1",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected error for jwt backend without secret")
	}
}

func TestValidateConfigRejectsUnknownProvider(t *testing.T) {
	cfg := FileConfig{
		Port:           "8080",
		RedisAddr:      "localhost:6379",
		MinioEndpoint:  "localhost:9000",
		MinioBucket:    "contracts",
		SessionBackend: "redis",
		AIProvider:     "clippy",
		AIModel:        "m",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected error for unknown aiProvider")
	}
}

func TestValidateConfigRejectsGeminiWithoutKey(t *testing.T) {
	cfg := FileConfig{
		Port:           "8080",
		RedisAddr:      "localhost:6379",
		MinioEndpoint:  "localhost:9000",
		MinioBucket:    "contracts",
		SessionBackend: "redis",
		AIProvider:     "gemini",
		AIModel:        "gemini-2.0-flash",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected error for gemini without api key")
	}
}
