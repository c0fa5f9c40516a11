package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Helpers. Viper is primed with AutomaticEnv by utils.LoadConfig, so these
// read the process environment plus any loaded .env file.
func getEnv(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := viper.GetString(key); v != "" {
		return viper.GetInt(key)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := viper.GetString(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}
