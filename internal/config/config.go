package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BackpressurePolicy selects queue behavior when the persistence queue is full.
type BackpressurePolicy string

const (
	// DropOldest evicts the head of the queue to admit the new write.
	DropOldest BackpressurePolicy = "drop-oldest"
	// DropNew rejects the incoming write and counts an overflow event.
	DropNew BackpressurePolicy = "drop-new"
)

type Config struct {
	Port                 int
	DatabasePath         string
	StorageBaseDir       string
	CooldownWindow       time.Duration // minimum gap between accepted sightings of one plate
	CooldownEvictFactor  int           // entries idle longer than factor*window may be evicted
	QueueCapacity        int
	Backpressure         BackpressurePolicy
	MaxWriteRetries      int
	RetryBackoff         time.Duration
	MaxReconnectAttempts int
	ShutdownDrainTimeout time.Duration
	MinConfidence        float64
}

func Load() *Config {
	return &Config{
		Port:                 getEnvAsInt("PORT", 8080),
		DatabasePath:         getEnv("DATABASE_PATH", filepath.Join(".", "alpr_data", "plates.db")),
		StorageBaseDir:       getEnv("STORAGE_BASE_DIR", filepath.Join(".", "alpr_data", "crops")),
		CooldownWindow:       getEnvAsDurationSec("COOLDOWN_WINDOW_SECONDS", 5),
		CooldownEvictFactor:  getEnvAsInt("COOLDOWN_EVICTION_FACTOR", 10),
		QueueCapacity:        getEnvAsInt("QUEUE_CAPACITY", 128),
		Backpressure:         getEnvAsPolicy("BACKPRESSURE_POLICY", DropOldest),
		MaxWriteRetries:      getEnvAsInt("MAX_WRITE_RETRIES", 3),
		RetryBackoff:         getEnvAsDurationMs("RETRY_BACKOFF_MS", 250),
		MaxReconnectAttempts: getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 3),
		ShutdownDrainTimeout: getEnvAsDurationMs("SHUTDOWN_DRAIN_TIMEOUT_MS", 5000),
		MinConfidence:        getEnvAsFloat("MIN_CONFIDENCE", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDurationSec(key string, defaultSeconds float64) time.Duration {
	seconds := getEnvAsFloat(key, defaultSeconds)
	return time.Duration(seconds * float64(time.Second))
}

func getEnvAsDurationMs(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}

func getEnvAsPolicy(key string, defaultValue BackpressurePolicy) BackpressurePolicy {
	switch BackpressurePolicy(os.Getenv(key)) {
	case DropOldest:
		return DropOldest
	case DropNew:
		return DropNew
	}
	return defaultValue
}
