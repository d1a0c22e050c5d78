package tls

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	cert := touch(t, dir, "cert.pem", "cert")
	key := touch(t, dir, "key.pem", "key")
	ca := touch(t, dir, "ca.pem", "ca")

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "server tls without ca", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key}},
		{name: "mutual tls", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: ca}},
		{name: "missing key", cfg: Config{Enabled: true, CertFile: cert}, wantErr: true},
		{name: "missing file", cfg: Config{Enabled: true, CertFile: cert, KeyFile: filepath.Join(dir, "nope.pem")}, wantErr: true},
		{name: "missing ca file", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: filepath.Join(dir, "nope.pem")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_MutualTLS(t *testing.T) {
	if (Config{Enabled: true, CAFile: "ca.pem"}).MutualTLS() != true {
		t.Error("MutualTLS() should be true when a CA is configured")
	}
	if (Config{Enabled: true}).MutualTLS() {
		t.Error("MutualTLS() should be false without a CA")
	}
	if (Config{CAFile: "ca.pem"}).MutualTLS() {
		t.Error("MutualTLS() should be false when TLS is disabled")
	}
}

func TestNewServerTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := touch(t, dir, "garbage.pem", "not a certificate")

	if _, err := NewServerTLSConfig("", "", ""); err == nil {
		t.Error("expected error for empty paths")
	}
	if _, err := NewServerTLSConfig(garbage, garbage, ""); err == nil {
		t.Error("expected error for unparsable key pair")
	}
}

func TestNewClientTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := touch(t, dir, "garbage.pem", "not a certificate")

	if _, err := NewClientTLSConfig("", "", ""); err == nil {
		t.Error("expected error for missing CA")
	}
	if _, err := NewClientTLSConfig("", "", garbage); err == nil {
		t.Error("expected error for unparsable CA")
	}
}
