package security

import (
	"crypto/tls"
	"strings"
	"testing"

	"github.com/kbukum/speechgate/security/tlstest"
)

func TestTLSConfig_DisabledBuildsNil(t *testing.T) {
	for name, cfg := range map[string]*TLSConfig{"nil": nil, "zero": {}} {
		t.Run(name, func(t *testing.T) {
			got, err := cfg.Build()
			if err != nil || got != nil {
				t.Fatalf("Build() = %v, %v; want nil, nil", got, err)
			}
		})
	}
}

func TestTLSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TLSConfig
		wantErr string
	}{
		{"empty", TLSConfig{}, ""},
		{"cert without key", TLSConfig{CertFile: "c.pem"}, "set together"},
		{"key without cert", TLSConfig{KeyFile: "k.pem"}, "set together"},
		{"tls13", TLSConfig{MinVersion: "1.3"}, ""},
		{"bad version", TLSConfig{MinVersion: "1.1"}, "min_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTLSConfig_BuildFull(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	cfg := &TLSConfig{
		CAFile:     certs.CAFile,
		CertFile:   certs.CertFile,
		KeyFile:    certs.KeyFile,
		ServerName: "localhost",
		MinVersion: "1.3",
	}
	got, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.RootCAs == nil {
		t.Error("expected RootCAs")
	}
	if len(got.Certificates) != 1 {
		t.Errorf("got %d client certificates, want 1", len(got.Certificates))
	}
	if got.ServerName != "localhost" || got.MinVersion != tls.VersionTLS13 {
		t.Errorf("got ServerName=%q MinVersion=%d", got.ServerName, got.MinVersion)
	}
}

func TestTLSConfig_BuildDefaultsToTLS12(t *testing.T) {
	got, err := (&TLSConfig{SkipVerify: true}).Build()
	if err != nil {
		t.Fatal(err)
	}
	if !got.InsecureSkipVerify || got.MinVersion != tls.VersionTLS12 {
		t.Errorf("got skip=%v min=%d", got.InsecureSkipVerify, got.MinVersion)
	}
}

func TestTLSConfig_BuildFileErrors(t *testing.T) {
	bad := tlstest.WriteInvalidPEM(t, "bad.pem")
	tests := map[string]TLSConfig{
		"missing ca":  {CAFile: "/nonexistent/ca.pem"},
		"invalid ca":  {CAFile: bad},
		"invalid key": {CertFile: bad, KeyFile: bad},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := cfg.Build(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
