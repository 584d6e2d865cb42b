package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	Recommender RecommenderConfig
	OMDb        OMDbConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins string
	HSTS           bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Password      string
	DB            int
	PopularTTLSec int
}

type RecommenderConfig struct {
	StaleAfter      time.Duration
	LikeThreshold   float64
	MaxFeatures     int
	NGramMax        int
	StopWords       bool
	PoolExtra       int
	SeedBatch       int
	SessionCapacity int
	Seed            int64
	Diversify       bool
	Workers         int
	RecencyYears    int
	DefaultLimit    int
	MaxLimit        int
}

type OMDbConfig struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
	// RequestIntervalMs spaces consecutive OMDb calls during a load.
	RequestIntervalMs int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/movie-recommender")

	v.SetEnvPrefix("MOVIEREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	r := c.Recommender
	if r.StaleAfter <= 0 {
		return fmt.Errorf("recommender.staleAfter must be positive, got %s", r.StaleAfter)
	}
	if r.LikeThreshold < 0.5 || r.LikeThreshold > 5.0 {
		return fmt.Errorf("recommender.likeThreshold must be within 0.5-5.0, got %.1f", r.LikeThreshold)
	}
	if r.NGramMax < 1 || r.NGramMax > 2 {
		return fmt.Errorf("recommender.ngramMax must be 1 or 2, got %d", r.NGramMax)
	}
	if r.DefaultLimit <= 0 || r.MaxLimit < r.DefaultLimit {
		return fmt.Errorf("recommender limits invalid: default=%d max=%d", r.DefaultLimit, r.MaxLimit)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("server.hsts", false)

	v.SetDefault("sqlite.path", "./data/movies.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.popularTTLSec", 300)

	v.SetDefault("recommender.staleAfter", "30m")
	v.SetDefault("recommender.likeThreshold", 4.0)
	v.SetDefault("recommender.maxFeatures", 5000)
	v.SetDefault("recommender.ngramMax", 2)
	v.SetDefault("recommender.stopWords", true)
	v.SetDefault("recommender.poolExtra", 20)
	v.SetDefault("recommender.seedBatch", 3)
	v.SetDefault("recommender.sessionCapacity", 10000)
	v.SetDefault("recommender.seed", 0)
	v.SetDefault("recommender.diversify", true)
	v.SetDefault("recommender.workers", 0)
	v.SetDefault("recommender.recencyYears", 10)
	v.SetDefault("recommender.defaultLimit", 5)
	v.SetDefault("recommender.maxLimit", 50)

	v.SetDefault("omdb.apiKey", "")
	v.SetDefault("omdb.baseURL", "http://www.omdbapi.com/")
	v.SetDefault("omdb.timeoutSec", 10)
	v.SetDefault("omdb.requestIntervalMs", 500)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
