package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Web       WebConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Matching  MatchingConfig
	Images    ImagesConfig
	MinIO     MinIOConfig
	Models    ModelsConfig
	LogLevel  string // debug, info, warn or error
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS allow-list in addition to localhost
	APIToken       string   // optional bearer token required on /api/v1 (empty disables auth)
}

type DatabaseConfig struct {
	URL          string // sqlite path or sqlite://, postgres:// or mysql:// URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL        string  // defaults to http://localhost:8000
	Model      string  // defaults to Facenet
	TimeoutSec int     // per-request timeout
	RateLimit  float64 // requests per second, 0 = unlimited
}

type MatchingConfig struct {
	Threshold           float64 // maximum cosine distance accepted as a match
	Index               string  // "" for a linear scan, "hnsw" for the in-memory index
	RegisterConcurrency int
}

type ImagesConfig struct {
	Store string // "local" or "minio"
	Dir   string // directory for the local store
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

type ModelProfile struct {
	Dim int `yaml:"dim"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envString returns the env var or a default when it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 5000),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("API_TOKEN"),
		},
		Database: DatabaseConfig{
			URL:          envString("DATABASE_URL", "attendance.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:        os.Getenv("EMBEDDING_URL"),
			Model:      envString("EMBEDDING_MODEL", constants.DefaultEmbeddingModel),
			TimeoutSec: envInt("EMBEDDING_TIMEOUT_SEC", constants.DefaultEmbeddingTimeoutSec),
			RateLimit:  envFloat("EMBEDDING_RATE_LIMIT", 0),
		},
		Matching: MatchingConfig{
			Threshold:           envFloat("MATCH_THRESHOLD", constants.DefaultDistanceThreshold),
			Index:               strings.ToLower(os.Getenv("MATCH_INDEX")),
			RegisterConcurrency: envInt("REGISTER_CONCURRENCY", constants.DefaultRegisterConcurrency),
		},
		Images: ImagesConfig{
			Store: strings.ToLower(envString("IMAGE_STORE", "local")),
			Dir:   envString("IMAGE_DIR", "student_images"),
		},
		MinIO: MinIOConfig{
			Endpoint:  envString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envString("MINIO_BUCKET", "student-images"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		},
		Models:   models,
		LogLevel: strings.ToLower(envString("LOG_LEVEL", "info")),
	}
}

// GetModelProfile returns the profile for a model, with ok=false for unknown models.
// Unknown models skip the dimension check.
func (c *Config) GetModelProfile(modelName string) (ModelProfile, bool) {
	profile, ok := c.Models.Models[modelName]
	return profile, ok
}

// ExpectedDim returns the embedding dimension of the configured model, or 0 when unknown.
func (c *Config) ExpectedDim() int {
	profile, ok := c.GetModelProfile(c.Embedding.Model)
	if !ok {
		return 0
	}
	return profile.Dim
}
