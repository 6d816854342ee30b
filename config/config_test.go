package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "KEY_ALIAS", "LOG_LEVEL", "OTEL_ENABLED", "OTEL_SAMPLING_RATE", "KEYCHAIN_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("want port 8080, got %s", cfg.Port)
	}
	if cfg.KeyAlias != DefaultKeyAlias {
		t.Errorf("want key alias %s, got %s", DefaultKeyAlias, cfg.KeyAlias)
	}
	if cfg.LogLevel != "INFO" {
		t.Errorf("want log level INFO, got %s", cfg.LogLevel)
	}
	if cfg.OtelEnabled {
		t.Error("want otel disabled by default")
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("want sampling rate 1.0, got %v", cfg.OtelSamplingRate)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KEY_ALIAS", "custom_alias")
	t.Setenv("KEYCHAIN_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg := Load()

	if cfg.KeyAlias != "custom_alias" {
		t.Errorf("want key alias custom_alias, got %s", cfg.KeyAlias)
	}
	if !cfg.KeychainEnabled {
		t.Error("want keychain enabled")
	}
	if cfg.OtelSamplingRate != 0.25 {
		t.Errorf("want sampling rate 0.25, got %v", cfg.OtelSamplingRate)
	}
}

func TestLoad_InvalidSamplingRateFallsBack(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATE", "2.5")

	cfg := Load()

	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("want fallback sampling rate 1.0, got %v", cfg.OtelSamplingRate)
	}
}
