package pkg

import "os"

// Getenv returns the value of key, or defaultValue when key is not set.
// An empty value counts as set.
func Getenv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
