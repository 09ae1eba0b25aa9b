package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DEFAULT_LOCALE", "LOCALES", "REDIS_URL", "MINIO_USE_SSL", "EDITOR_SESSION_TTL_SECONDS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.DefaultLocale != "en" {
		t.Errorf("DefaultLocale = %q, want en", cfg.DefaultLocale)
	}
	if !reflect.DeepEqual(cfg.Locales, []string{"en"}) {
		t.Errorf("Locales = %v, want [en]", cfg.Locales)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if cfg.EditorSessionTTL != 24*time.Hour {
		t.Errorf("EditorSessionTTL = %v, want 24h", cfg.EditorSessionTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEFAULT_LOCALE", "fr")
	t.Setenv("LOCALES", "fr, en,,de ")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MEDIA_UPLOAD_CONCURRENCY", "8")
	t.Setenv("MEDIA_MAX_BYTES", "not-a-number")

	cfg := Load()
	if !reflect.DeepEqual(cfg.Locales, []string{"fr", "en", "de"}) {
		t.Errorf("Locales = %v", cfg.Locales)
	}
	if !cfg.MinioUseSSL {
		t.Error("MinioUseSSL = false, want true")
	}
	if cfg.UploadConcurrency != 8 {
		t.Errorf("UploadConcurrency = %d, want 8", cfg.UploadConcurrency)
	}
	if cfg.MediaMaxBytes != 20<<20 {
		t.Errorf("MediaMaxBytes = %d, want fallback", cfg.MediaMaxBytes)
	}
}

func TestGetenvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"false", false},
		{"1", true},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("FLAG_UNDER_TEST", tt.value)
			if got := getenvBool("FLAG_UNDER_TEST", true); got != tt.want {
				t.Errorf("getenvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
