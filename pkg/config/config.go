package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "SKATEHUBBA_"

type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	CDNBaseURL      string
}

// Config is the server configuration taken from the environment.
type Config struct {
	DatabaseURL   string
	MigrationsDir string
	// RedisURL enables the Redis watch broker for multi-instance deployments.
	RedisURL string

	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// S3.Bucket empty keeps videos in memory.
	S3 S3Config

	QueueTTL      time.Duration
	ChallengeTTL  time.Duration
	UploadTTL     time.Duration
	SweepInterval time.Duration

	MaxVideoBytes     int64
	MaxVideoDuration  time.Duration
	SpoolDir          string
	UploadConcurrency int
	UploadQueueSize   int

	SwapTurnOnLand bool

	TLSCertFile string
	TLSKeyFile  string
}

// Load reads the given dotenv files, if present, and then the environment.
// Variables already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset keys.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}
	cfg := &Config{
		DatabaseURL:   e.string("DATABASE_URL", "sqlite://skatehubba.db"),
		MigrationsDir: e.string("MIGRATIONS_DIR", "./migrations"),
		RedisURL:      e.string("REDIS_URL", ""),

		FirebaseProjectID:       e.string("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: e.string("FIREBASE_CREDENTIALS_FILE", ""),

		S3: S3Config{
			Bucket:          e.string("S3_BUCKET", ""),
			Endpoint:        e.string("S3_ENDPOINT", ""),
			Region:          e.string("S3_REGION", ""),
			AccessKeyID:     e.string("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: e.string("S3_SECRET_ACCESS_KEY", ""),
			CDNBaseURL:      e.string("CDN_BASE_URL", ""),
		},

		QueueTTL:      e.duration("QUEUE_TTL", 10*time.Minute),
		ChallengeTTL:  e.duration("CHALLENGE_TTL", 24*time.Hour),
		UploadTTL:     e.duration("UPLOAD_TTL", 30*time.Minute),
		SweepInterval: e.duration("SWEEP_INTERVAL", time.Minute),

		MaxVideoBytes:     e.int64("MAX_VIDEO_BYTES", 100<<20),
		MaxVideoDuration:  e.duration("MAX_VIDEO_DURATION", 60*time.Second),
		SpoolDir:          e.string("SPOOL_DIR", ""),
		UploadConcurrency: int(e.int64("UPLOAD_CONCURRENCY", 2)),
		UploadQueueSize:   int(e.int64("UPLOAD_QUEUE_SIZE", 64)),

		SwapTurnOnLand: e.bool("SWAP_TURN_ON_LAND", false),

		TLSCertFile: e.string("API_TLS_CERT_FILE", ""),
		TLSKeyFile:  e.string("API_TLS_KEY_FILE", ""),
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("%sSWEEP_INTERVAL must be positive", EnvPrefix)
	}
	return cfg, nil
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *env) string(key, def string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s%s: %v", EnvPrefix, key, err))
		return def
	}
	return d
}

func (e *env) int64(key string, def int64) int64 {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s%s: %v", EnvPrefix, key, err))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s%s: %v", EnvPrefix, key, err))
		return def
	}
	return b
}
