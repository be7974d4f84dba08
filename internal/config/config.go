package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by PINAHT_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("PINAHT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the environment may already be set.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is empty when runs are kept in memory.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// APIToken guards the /v1 routes. Empty disables auth.
func APIToken() string {
	return os.Getenv("API_TOKEN")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// MaxIterations is the scheduler's iteration ceiling.
func MaxIterations() int {
	n, err := strconv.Atoi(os.Getenv("MAX_ITERATIONS"))
	if err != nil || n <= 0 {
		return 100000
	}
	return n
}

// SeedCertainty is how strongly the init node vouches for start knowledge.
func SeedCertainty() float64 {
	c, err := strconv.ParseFloat(os.Getenv("SEED_CERTAINTY"), 64)
	if err != nil || c <= 0 || c > 1 {
		return 0.99
	}
	return c
}

// TypesPath points to a type schema file. Empty selects the built-in schema.
func TypesPath() string {
	return os.Getenv("TYPES_PATH")
}

// ScenarioPath is the default scenario for the run command.
func ScenarioPath() string {
	return os.Getenv("SCENARIO_PATH")
}

// RunRetention is how long stored runs are kept by the server. Zero keeps
// them forever.
func RunRetention() time.Duration {
	d, err := time.ParseDuration(os.Getenv("RUN_RETENTION"))
	if err != nil || d < 0 {
		return 0
	}
	return d
}
