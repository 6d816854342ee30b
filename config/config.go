// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
)

// DefaultKeyAlias はマスター鍵のデフォルトのエイリアス。
const DefaultKeyAlias = "vault_master_key"

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	DocumentPath       string
	KeyAlias           string
	KMSKeyName         string
	GoogleCloudProject string
	VaultPassphrase    string
	KeychainEnabled    bool
	LogLevel           string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DocumentPath:       os.Getenv("DOCUMENT_PATH"),
		KeyAlias:           getEnv("KEY_ALIAS", DefaultKeyAlias),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		VaultPassphrase:    os.Getenv("VAULT_PASSPHRASE"),
		KeychainEnabled:    getEnvBool("KEYCHAIN_ENABLED", false),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "vault-store"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultVal
	}
	return f
}
