package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	DataDir     string
	JournalPath string

	WorldURL string
	SelfID   string
	Offline  bool
	Debug    bool

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	Persona     string

	MaxDistance   float64
	ReflexTick    time.Duration
	ScriptTimeout time.Duration
	ScriptToolCap int

	LLMAttempts   int
	LLMRetryDelay time.Duration
	BudgetDefault int
	BudgetMax     int
	HistoryLimit  int

	GuardThreshold int
	GuardWindow    int
	GuardCooldown  time.Duration
}

// Load reads .env (if present) and then the environment. Unset keys keep
// their defaults; a missing API key only matters once the brain is wired.
func Load() Config {
	_ = godotenv.Load()
	dataDir := getEnv("GOLEM_DATA_DIR", "data")
	return Config{
		HTTPAddr:    getEnv("GOLEM_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		JournalPath: getEnv("GOLEM_JOURNAL_PATH", filepath.Join(dataDir, "journal.db")),

		WorldURL: getEnv("GOLEM_WORLD_URL", "ws://127.0.0.1:3000/agent"),
		SelfID:   getEnv("GOLEM_SELF_ID", "golem"),
		Offline:  getBool("GOLEM_OFFLINE", false),
		Debug:    getBool("GOLEM_DEBUG", false),

		LLMProvider: getEnv("GOLEM_LLM_PROVIDER", "anthropic"),
		LLMModel:    getEnv("GOLEM_LLM_MODEL", ""),
		LLMAPIKey:   getEnv("GOLEM_LLM_API_KEY", ""),
		Persona:     getEnv("GOLEM_PERSONA", ""),

		MaxDistance:   getFloat("GOLEM_MAX_DISTANCE", 32),
		ReflexTick:    getDuration("GOLEM_REFLEX_TICK", 250*time.Millisecond),
		ScriptTimeout: getDuration("GOLEM_SCRIPT_TIMEOUT", 5*time.Second),
		ScriptToolCap: getInt("GOLEM_SCRIPT_TOOL_CAP", 8),

		LLMAttempts:   getInt("GOLEM_LLM_ATTEMPTS", 3),
		LLMRetryDelay: getDuration("GOLEM_LLM_RETRY_DELAY", 2*time.Second),
		BudgetDefault: getInt("GOLEM_BUDGET_DEFAULT", 3),
		BudgetMax:     getInt("GOLEM_BUDGET_MAX", 5),
		HistoryLimit:  getInt("GOLEM_HISTORY_LIMIT", 40),

		GuardThreshold: getInt("GOLEM_GUARD_THRESHOLD", 3),
		GuardWindow:    getInt("GOLEM_GUARD_WINDOW", 10),
		GuardCooldown:  getDuration("GOLEM_GUARD_COOLDOWN", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
