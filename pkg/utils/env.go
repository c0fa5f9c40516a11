package utils

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig primes viper with the process environment plus an optional
// .env file in path. Missing .env is not an error; the environment wins
// over file values.
func LoadConfig(path string) {
	_ = godotenv.Load(filepath.Join(path, ".env"))
	viper.AutomaticEnv()
}
