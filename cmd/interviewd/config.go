package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type config struct {
	port             string
	databaseURL      string
	agentEndpoint    string
	agentID          string
	openaiAPIKey     string
	openaiBaseURL    string
	scoringModel     string
	minioEndpoint    string
	minioAccessKey   string
	minioSecretKey   string
	minioBucket      string
	minioUseSSL      bool
	notifyWebhookURL string
	notifyPoolSize   int
	maxConcurrent    int
	sweepInterval    time.Duration
	sweepGrace       time.Duration
	playbackURLTTL   time.Duration
}

func loadConfig() config {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	return config{
		port:             envStr("INTERVIEWD_PORT", "8000"),
		databaseURL:      envStr("DATABASE_URL", "postgres://localhost:5432/vantahire?sslmode=disable"),
		agentEndpoint:    envStr("AGENT_WS_URL", "wss://api.agent.example.com/v1/conversation"),
		agentID:          envStr("AGENT_ID", ""),
		openaiAPIKey:     envStr("OPENAI_API_KEY", ""),
		openaiBaseURL:    envStr("OPENAI_BASE_URL", ""),
		scoringModel:     envStr("SCORING_MODEL", "gpt-4o-mini"),
		minioEndpoint:    envStr("MINIO_ENDPOINT", ""),
		minioAccessKey:   envStr("MINIO_ACCESS_KEY", ""),
		minioSecretKey:   envStr("MINIO_SECRET_KEY", ""),
		minioBucket:      envStr("MINIO_BUCKET", "interview-recordings"),
		minioUseSSL:      envBool("MINIO_USE_SSL", false),
		notifyWebhookURL: envStr("NOTIFY_WEBHOOK_URL", ""),
		notifyPoolSize:   envInt("NOTIFY_POOL_SIZE", 10),
		maxConcurrent:    envInt("MAX_CONCURRENT_INTERVIEWS", 100),
		sweepInterval:    envDuration("SWEEP_INTERVAL", time.Minute),
		sweepGrace:       envDuration("SWEEP_GRACE", 5*time.Minute),
		playbackURLTTL:   envDuration("PLAYBACK_URL_TTL", 15*time.Minute),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
