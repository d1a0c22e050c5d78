package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testDSN = "postgres://supplylink:secret@db:5432/supplylink"

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BOOL", "1")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt(invalid) = %d, want default 7", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]string{"-database-url", testDSN})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Listen", cfg.Listen, ":8000"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"Storage", cfg.Storage, "file"},
		{"ModelPath", cfg.ModelPath, "./models"},
		{"ModelFile", cfg.ModelFile, "demand_model.pb"},
		{"Source", cfg.Source, "postgres"},
		{"ModelVersion", cfg.ModelVersion, "1.0.0"},
		{"MinTrainingRows", cfg.MinTrainingRows, 10},
		{"MaxHorizonDays", cfg.MaxHorizonDays, 365},
		{"TrainTimeout", cfg.TrainTimeout, 5 * time.Minute},
		{"RetrainInterval", cfg.RetrainInterval, time.Duration(0)},
		{"Lock", cfg.Lock, "memory"},
		{"TraceExporter", cfg.TraceExporter, "none"},
		{"dsn", cfg.AdapterConfig["dsn"], testDSN},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
}

func TestParse_FlagBeatsEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", testDSN)
	t.Setenv("LISTEN", ":9000")
	t.Setenv("MAX_HORIZON_DAYS", "60")

	cfg, err := Parse([]string{"-listen=:9100", "-cors-origins", "http://a.local, http://b.local"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Errorf("Listen = %q, want flag value :9100", cfg.Listen)
	}
	if cfg.MaxHorizonDays != 60 {
		t.Errorf("MaxHorizonDays = %d, want env value 60", cfg.MaxHorizonDays)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "http://a.local|http://b.local" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestParse_EnvFile(t *testing.T) {
	path := writeTemp(t, "supplylink.env", "DATABASE_URL="+testDSN+"\nMODEL_VERSION=2.5.0\nLOG_LEVEL=debug\n")
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("MODEL_VERSION")
	})

	cfg, err := Parse([]string{"-env-file", path})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.ModelVersion != "2.5.0" {
		t.Errorf("ModelVersion = %q, want value from env file", cfg.ModelVersion)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, env file must not override the environment", cfg.LogLevel)
	}
	if cfg.AdapterConfig["dsn"] != testDSN {
		t.Errorf("dsn = %q", cfg.AdapterConfig["dsn"])
	}
}

func TestParse_MissingEnvFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")

	if _, err := Parse([]string{"-env-file", missing, "-database-url", testDSN}); err == nil {
		t.Error("expected error for explicitly requested env file that does not exist")
	}
}

func TestParse_ConfigFile(t *testing.T) {
	path := writeTemp(t, "forecaster.yaml", `
listen: ":7000"
max-horizon-days: 90
min-training-rows: 20
storage: memory
source: http
train-on-start: true
cors-origins:
  - http://web.local
  - http://admin.local
adapter:
  url: http://supplylink-api:3000/api/demand-records
  timestampPath: data.#.createdAt
`)
	t.Setenv("MIN_TRAINING_ROWS", "15")
	t.Setenv("ADAPTER_TIMESTAMP_PATH", "items.#.ts")

	cfg, err := Parse([]string{"-config-file", path, "-max-horizon-days", "120"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q, want file value :7000", cfg.Listen)
	}
	if cfg.MaxHorizonDays != 120 {
		t.Errorf("MaxHorizonDays = %d, flag must beat file", cfg.MaxHorizonDays)
	}
	if cfg.MinTrainingRows != 15 {
		t.Errorf("MinTrainingRows = %d, env must beat file", cfg.MinTrainingRows)
	}
	if cfg.Storage != "memory" || cfg.Source != "http" || !cfg.TrainOnStart {
		t.Errorf("Storage/Source/TrainOnStart = %q/%q/%v", cfg.Storage, cfg.Source, cfg.TrainOnStart)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://admin.local" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.AdapterConfig["url"] != "http://supplylink-api:3000/api/demand-records" {
		t.Errorf("adapter url = %q", cfg.AdapterConfig["url"])
	}
	if cfg.AdapterConfig["timestampPath"] != "items.#.ts" {
		t.Errorf("timestampPath = %q, ADAPTER_* env must beat file", cfg.AdapterConfig["timestampPath"])
	}
}

func TestParse_ConfigFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "listen-port: 80\n"},
		{name: "bad value", content: "max-horizon-days: lots\n"},
		{name: "adapter not a mapping", content: "adapter: [1, 2]\n"},
		{name: "invalid yaml", content: "listen: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "bad.yaml", tt.content)
			if _, err := Parse([]string{"-config-file", path, "-database-url", testDSN}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LogLevel:         "info",
			LogFormat:        "text",
			Storage:          "file",
			ModelPath:        "./models",
			ModelFile:        "demand_model.pb",
			Lock:             "memory",
			Source:           "postgres",
			AdapterConfig:    map[string]string{"dsn": testDSN},
			MinTrainingRows:  10,
			MaxHorizonDays:   365,
			TrainTimeout:     time.Minute,
			PredictTimeout:   time.Second,
			TraceSampleRatio: 1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad storage", func(c *Config) { c.Storage = "s3" }},
		{"minio without endpoint", func(c *Config) { c.Storage = "minio" }},
		{"redis lock without addr", func(c *Config) { c.Lock = "redis" }},
		{"empty model file", func(c *Config) { c.ModelFile = "" }},
		{"postgres without dsn", func(c *Config) { c.AdapterConfig = map[string]string{} }},
		{"http without url", func(c *Config) { c.Source = "http" }},
		{"file without path", func(c *Config) { c.Source = "file" }},
		{"unknown source", func(c *Config) { c.Source = "kafka" }},
		{"zero min rows", func(c *Config) { c.MinTrainingRows = 0 }},
		{"zero horizon", func(c *Config) { c.MaxHorizonDays = 0 }},
		{"negative interval", func(c *Config) { c.RetrainInterval = -time.Second }},
		{"ratio above one", func(c *Config) { c.TraceSampleRatio = 1.5 }},
		{"tls without files", func(c *Config) { c.TLS.Enabled = true }},
		{"source tls without ca", func(c *Config) { c.SourceTLS.Enabled = true }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestParseAdapterConfig(t *testing.T) {
	t.Setenv("ADAPTER_URL", "http://api")
	t.Setenv("ADAPTER_PRODUCT_ID_PATH", "data.#.productId")
	t.Setenv("ADAPTER_", "ignored")

	cfg := parseAdapterConfig()
	if cfg["url"] != "http://api" {
		t.Errorf("url = %q", cfg["url"])
	}
	if cfg["productIdPath"] != "data.#.productId" {
		t.Errorf("productIdPath = %q", cfg["productIdPath"])
	}
	if _, ok := cfg[""]; ok {
		t.Error("bare ADAPTER_ prefix must be ignored")
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"URL":             "url",
		"TIMESTAMP_PATH":  "timestampPath",
		"PRODUCT_ID_PATH": "productIdPath",
		"TEMPLATE_VARS":   "templateVars",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArgValue(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-env-file", "a.env"}, "a.env"},
		{[]string{"--env-file=b.env"}, "b.env"},
		{[]string{"-listen", ":1"}, "default"},
		{[]string{"-env-file"}, "default"},
	}
	for _, tt := range tests {
		if got := argValue(tt.args, "env-file", "default"); got != tt.want {
			t.Errorf("argValue(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
