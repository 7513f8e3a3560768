package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFile loads the first of .env/.env.local that exists. godotenv never
// overwrites variables already set in the process environment.
func loadEnvFile() error {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		return godotenv.Load(envPath)
	}
	return fmt.Errorf("no .env file found")
}
