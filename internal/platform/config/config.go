package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte

	// WebhookSecret must match the grader's X-Webhook-Secret header. Empty disables the check.
	WebhookSecret  string
	// JoinsPerMinute caps join attempts per caller.
	JoinsPerMinute int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers          []string
	KafkaGroupID          string
	KafkaJudgedTopic      string
	KafkaLeaderboardTopic string

	// RankingRecomputeInterval is the periodic refresh for running contests even without new verdicts.
	RankingRecomputeInterval time.Duration
	// RankingMinRecomputeGap bounds how often a single contest's worker may recompute.
	RankingMinRecomputeGap time.Duration
	RankingFinalCachePrefix string
	RankingFinalCacheTTL    time.Duration
	// RankingLockTTL bounds how long one instance may hold a contest's finalize lock.
	RankingLockTTL time.Duration

	LogLevel  string
	LogPretty bool

	// EnvFileLoaded is false when no .env file was found.
	EnvFileLoaded bool
}

var AppConfig *Config

func Load() *Config {
	envErr := godotenv.Load()

	AppConfig = &Config{
		APIPort:        getEnv("API_PORT", "8080"),
		JWTKey:         []byte(getEnv("JWT_SECRET", "defaultsecret")),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		JoinsPerMinute: getEnvAsInt("JOINS_PER_MINUTE", 30),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "user"),
		DBPassword:     getEnv("DB_PASSWORD", "password"),
		DBName:         getEnv("DB_NAME", "tle_zone_db"),
		DBSslMode:      getEnv("DB_SSLMODE", "disable"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),

		KafkaBrokers:          getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "contest-ranking"),
		KafkaJudgedTopic:      getEnv("KAFKA_JUDGED_TOPIC", "submission.judged"),
		KafkaLeaderboardTopic: getEnv("KAFKA_LEADERBOARD_TOPIC", "leaderboard.updated"),

		RankingRecomputeInterval: time.Duration(getEnvAsInt("RANKING_RECOMPUTE_INTERVAL_SECONDS", 5)) * time.Second,
		RankingMinRecomputeGap:   time.Duration(getEnvAsInt("RANKING_MIN_RECOMPUTE_GAP_MS", 500)) * time.Millisecond,
		RankingFinalCachePrefix:  getEnv("RANKING_FINAL_CACHE_PREFIX", "contest:ranking:final:"),
		RankingFinalCacheTTL:     time.Duration(getEnvAsInt("RANKING_FINAL_CACHE_TTL_HOURS", 168)) * time.Hour,
		RankingLockTTL:           time.Duration(getEnvAsInt("RANKING_LOCK_TTL_SECONDS", 30)) * time.Second,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnv("LOG_PRETTY", "false") == "true",

		EnvFileLoaded: envErr == nil,
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode

	return AppConfig
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
