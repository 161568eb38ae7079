package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Auth.SessionTTL != time.Hour {
		t.Fatalf("expected 1h session TTL, got %s", cfg.Auth.SessionTTL)
	}
	if cfg.Email.SMTPHost != "smtp.gmail.com" || cfg.Email.SMTPPort != 465 {
		t.Fatalf("unexpected SMTP endpoint %s:%d", cfg.Email.SMTPHost, cfg.Email.SMTPPort)
	}
	if cfg.Storage.Bucket != "qr-code-store" {
		t.Fatalf("unexpected bucket %q", cfg.Storage.Bucket)
	}
	if cfg.IsProduction() {
		t.Fatal("default env should not be production")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ARTIFACT_BACKEND=gcs\nARTIFACT_BUCKET=tickets-bucket\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("ARTIFACT_BACKEND")
		os.Unsetenv("ARTIFACT_BUCKET")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.ArtifactBaseURL(); got != "https://storage.googleapis.com/tickets-bucket" {
		t.Fatalf("unexpected artifact base URL %q", got)
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoad_RejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for default secret in production")
	}
}

func TestLoad_RejectsUnknownTransport(t *testing.T) {
	t.Setenv("EMAIL_TRANSPORT", "pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
