// Package config provides configuration parsing for the forecaster service.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables (including those loaded from the -env-file, default .env)
//  3. The YAML file named by -config-file, keyed by flag name
//  4. Default values
//
// Source-specific settings are passed as a generic map built from ADAPTER_*
// environment variables (ADAPTER_TIMESTAMP_PATH → timestampPath) and the
// "adapter" section of the YAML file.
//
// Example usage:
//
//	cfg, err := config.Parse(os.Args[1:])
//	if err != nil { ... }
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/supplylink/supplylink-ml/pkg/tls"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen      string
	GRPCListen  string
	LogFormat   string
	LogLevel    string
	CORSOrigins []string
	EnvFile     string
	ConfigFile  string
	TLS         tls.Config

	// Artifact storage
	Storage        string
	ModelPath      string
	ModelFile      string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisTTL       time.Duration
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	Lock           string

	// Demand data source
	Source        string
	DatabaseURL   string
	AdapterConfig map[string]string
	SourceTLS     tls.Config

	// Training and prediction
	ModelVersion    string
	MinTrainingRows int
	MaxHorizonDays  int
	TrainTimeout    time.Duration
	PredictTimeout  time.Duration
	RetrainInterval time.Duration
	TrainOnStart    bool

	// Tracing
	TraceExporter    string
	TraceEndpoint    string
	TraceInsecure    bool
	TraceSampleRatio float64
}

// ParseFlags parses os.Args and the environment into a Config, exiting the
// process on invalid configuration.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse builds and validates a Config from args, the environment, the env
// file and the YAML config file.
func Parse(args []string) (*Config, error) {
	envFile := argValue(args, "env-file", getEnv("ENV_FILE", ".env"))
	if err := loadEnvFile(envFile, argValue(args, "env-file", os.Getenv("ENV_FILE")) != ""); err != nil {
		return nil, err
	}

	cfg := &Config{}
	fset := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)

	fset.StringVar(&cfg.EnvFile, "env-file", envFile, "Dotenv file loaded into the environment (missing default file is ignored)")
	fset.StringVar(&cfg.ConfigFile, "config-file", getEnv("CONFIG_FILE", ""), "YAML file with flag defaults, keyed by flag name")

	fset.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8000"), "HTTP listen address")
	fset.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")
	fset.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fset.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	corsOrigins := fset.String("cors-origins", getEnv("CORS_ORIGINS", "*"), "Comma-separated allowed CORS origins")

	fset.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	fset.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fset.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fset.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA file; enables client certificate verification")

	fset.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Artifact storage: file, redis, minio, or memory")
	fset.StringVar(&cfg.ModelPath, "model-path", getEnv("MODEL_PATH", "./models"), "Artifact directory for file storage")
	fset.StringVar(&cfg.ModelFile, "model-file", getEnv("MODEL_FILE", "demand_model.pb"), "Artifact name within the store")
	fset.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fset.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fset.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fset.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis artifact TTL (0 keeps forever)")
	fset.StringVar(&cfg.MinIOEndpoint, "minio-endpoint", getEnv("MINIO_ENDPOINT", ""), "MinIO/S3 endpoint host:port")
	fset.StringVar(&cfg.MinIOAccessKey, "minio-access-key", getEnv("MINIO_ACCESS_KEY", ""), "MinIO access key")
	fset.StringVar(&cfg.MinIOSecretKey, "minio-secret-key", getEnv("MINIO_SECRET_KEY", ""), "MinIO secret key")
	fset.StringVar(&cfg.MinIOBucket, "minio-bucket", getEnv("MINIO_BUCKET", "supplylink-models"), "MinIO bucket")
	fset.BoolVar(&cfg.MinIOUseSSL, "minio-use-ssl", getEnvBool("MINIO_USE_SSL", false), "Use HTTPS for MinIO")
	fset.StringVar(&cfg.Lock, "lock", getEnv("LOCK", "memory"), "Artifact writer lock: memory or redis")

	fset.StringVar(&cfg.Source, "source", getEnv("SOURCE", "postgres"), "Demand source: postgres, http, or file")
	fset.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "Postgres DSN for the postgres source")
	fset.BoolVar(&cfg.SourceTLS.Enabled, "source-tls-enabled", getEnvBool("SOURCE_TLS_ENABLED", false), "Use TLS for the http source")
	fset.StringVar(&cfg.SourceTLS.CertFile, "source-tls-cert-file", getEnv("SOURCE_TLS_CERT_FILE", ""), "Client certificate for the http source")
	fset.StringVar(&cfg.SourceTLS.KeyFile, "source-tls-key-file", getEnv("SOURCE_TLS_KEY_FILE", ""), "Client key for the http source")
	fset.StringVar(&cfg.SourceTLS.CAFile, "source-tls-ca-file", getEnv("SOURCE_TLS_CA_FILE", ""), "CA verifying the http source server")

	fset.StringVar(&cfg.ModelVersion, "model-version", getEnv("MODEL_VERSION", "1.0.0"), "Version stamped on trained artifacts")
	fset.IntVar(&cfg.MinTrainingRows, "min-training-rows", getEnvInt("MIN_TRAINING_ROWS", 10), "Minimum usable rows to train")
	fset.IntVar(&cfg.MaxHorizonDays, "max-horizon-days", getEnvInt("MAX_HORIZON_DAYS", 365), "Largest accepted forecast horizon")
	fset.DurationVar(&cfg.TrainTimeout, "train-timeout", getEnvDuration("TRAIN_TIMEOUT", 5*time.Minute), "Timeout for one training run")
	fset.DurationVar(&cfg.PredictTimeout, "predict-timeout", getEnvDuration("PREDICT_TIMEOUT", 10*time.Second), "Timeout for one prediction")
	fset.DurationVar(&cfg.RetrainInterval, "retrain-interval", getEnvDuration("RETRAIN_INTERVAL", 0), "Periodic retraining interval (0 disables)")
	fset.BoolVar(&cfg.TrainOnStart, "train-on-start", getEnvBool("TRAIN_ON_START", false), "Train once at startup")

	fset.StringVar(&cfg.TraceExporter, "trace-exporter", getEnv("TRACE_EXPORTER", "none"), "Trace exporter: none, stdout, or otlphttp")
	fset.StringVar(&cfg.TraceEndpoint, "trace-endpoint", getEnv("TRACE_ENDPOINT", ""), "OTLP/HTTP collector URL")
	fset.BoolVar(&cfg.TraceInsecure, "trace-insecure", getEnvBool("TRACE_INSECURE", true), "Disable TLS for the OTLP exporter")
	fset.Float64Var(&cfg.TraceSampleRatio, "trace-sample-ratio", getEnvFloat("TRACE_SAMPLE_RATIO", 1.0), "Trace sampling ratio in [0, 1]")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	cfg.AdapterConfig = parseAdapterConfig()

	if cfg.ConfigFile != "" {
		if err := applyConfigFile(fset, cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.CORSOrigins = splitList(*corsOrigins)
	if cfg.Source == "postgres" && cfg.AdapterConfig["dsn"] == "" && cfg.DatabaseURL != "" {
		cfg.AdapterConfig["dsn"] = cfg.DatabaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	switch c.Storage {
	case "file":
		if c.ModelPath == "" {
			return errors.New("model-path is required for file storage")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required for redis storage")
		}
	case "minio":
		if c.MinIOEndpoint == "" {
			return errors.New("minio-endpoint is required for minio storage")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage %q (must be file, redis, minio, or memory)", c.Storage)
	}
	if c.ModelFile == "" {
		return errors.New("model-file cannot be empty")
	}

	if c.Lock != "memory" && c.Lock != "redis" {
		return fmt.Errorf("invalid lock %q (must be memory or redis)", c.Lock)
	}
	if c.Lock == "redis" && c.RedisAddr == "" {
		return errors.New("redis-addr is required for the redis lock")
	}

	switch c.Source {
	case "postgres":
		if c.AdapterConfig["dsn"] == "" {
			return errors.New("database-url (or ADAPTER_DSN) is required for the postgres source")
		}
	case "http":
		if c.AdapterConfig["url"] == "" {
			return errors.New("ADAPTER_URL is required for the http source")
		}
	case "file":
		if c.AdapterConfig["path"] == "" {
			return errors.New("ADAPTER_PATH is required for the file source")
		}
	default:
		return fmt.Errorf("invalid source %q (must be postgres, http, or file)", c.Source)
	}

	if c.MinTrainingRows < 1 {
		return errors.New("min-training-rows must be >= 1")
	}
	if c.MaxHorizonDays < 1 {
		return errors.New("max-horizon-days must be >= 1")
	}
	if c.TrainTimeout <= 0 || c.PredictTimeout <= 0 {
		return errors.New("train-timeout and predict-timeout must be > 0")
	}
	if c.RetrainInterval < 0 {
		return errors.New("retrain-interval cannot be negative")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return errors.New("trace-sample-ratio must be within [0, 1]")
	}

	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if c.SourceTLS.Enabled && c.SourceTLS.CAFile == "" {
		return errors.New("source-tls-ca-file is required when source TLS is enabled")
	}
	return nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is an error only when explicitly requested.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyConfigFile fills flags that were set neither on the command line nor
// through their environment variable from the YAML file at path.
func applyConfigFile(fset *flag.FlagSet, cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	explicit := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	for key, raw := range values {
		if key == "adapter" {
			section, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("config file %s: adapter must be a mapping", path)
			}
			for k, v := range section {
				if _, set := cfg.AdapterConfig[k]; !set {
					cfg.AdapterConfig[k] = fmt.Sprint(v)
				}
			}
			continue
		}

		if fset.Lookup(key) == nil {
			return fmt.Errorf("config file %s: unknown setting %q", path, key)
		}
		if explicit[key] || os.Getenv(envName(key)) != "" {
			continue
		}
		if err := fset.Set(key, yamlString(raw)); err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
	}
	return nil
}

func yamlString(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// envName maps a flag name to its environment variable: model-path → MODEL_PATH.
func envName(flagName string) string {
	return strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// argValue returns the value of -name or --name in args, or def.
func argValue(args []string, name, def string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAdapterConfig parses ADAPTER_* environment variables into a generic configuration map.
// Environment variable names are converted to camelCase for the map keys (ADAPTER_TIMESTAMP_PATH → timestampPath).
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || len(key) <= 8 || !strings.HasPrefix(key, "ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(key[8:])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
