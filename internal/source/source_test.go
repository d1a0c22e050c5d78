package source

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/supplylink/supplylink-ml/internal/config"
	"github.com/supplylink/supplylink-ml/pkg/adapters"
	"github.com/supplylink/supplylink-ml/pkg/tls"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew_HTTPGetsClient(t *testing.T) {
	cfg := &config.Config{
		Source:        "http",
		AdapterConfig: map[string]string{"url": "http://api.local/demand"},
		TrainTimeout:  42 * time.Second,
	}

	src, err := New(cfg, discard)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hs, ok := src.(*adapters.HTTPSource)
	if !ok {
		t.Fatalf("source = %T, want *adapters.HTTPSource", src)
	}
	if hs.HTTPClient == nil || hs.HTTPClient.Timeout != 42*time.Second {
		t.Errorf("HTTPClient = %+v, want timeout 42s", hs.HTTPClient)
	}
}

func TestNew_PostgresAndFile(t *testing.T) {
	tests := []struct {
		kind   string
		config map[string]string
	}{
		{kind: "postgres", config: map[string]string{"dsn": "postgres://u:p@localhost:5432/supplylink"}},
		{kind: "file", config: map[string]string{"path": "demand.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			src, err := New(&config.Config{Source: tt.kind, AdapterConfig: tt.config}, discard)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if src.Name() != tt.kind {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.kind)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{name: "unknown kind", cfg: config.Config{Source: "kafka"}},
		{name: "missing url", cfg: config.Config{Source: "http", AdapterConfig: map[string]string{}}},
		{name: "bad source tls", cfg: config.Config{
			Source:        "http",
			AdapterConfig: map[string]string{"url": "https://api.local"},
			SourceTLS:     tls.Config{Enabled: true, CAFile: "/nonexistent/ca.pem"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg, discard); err == nil {
				t.Error("expected error")
			}
		})
	}
}
