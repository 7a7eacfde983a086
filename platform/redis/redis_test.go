package redis

import "testing"

func TestTLSConfigFromURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		insecure     bool
		wantTLS      bool
		wantInsecure bool
	}{
		{name: "plain url has no tls", url: "redis://localhost:6379/0", wantTLS: false},
		{name: "rediss url carries tls", url: "rediss://localhost:6380/0", wantTLS: true},
		{name: "insecure flag on tls url", url: "rediss://localhost:6380/0", insecure: true, wantTLS: true, wantInsecure: true},
		{name: "insecure flag alone forces tls", url: "redis://localhost:6379/0", insecure: true, wantTLS: true, wantInsecure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := TLSConfigFromURL(tt.url, tt.insecure)
			if err != nil {
				t.Fatalf("TLSConfigFromURL() error = %v", err)
			}
			if (cfg != nil) != tt.wantTLS {
				t.Fatalf("tls config present = %v, want %v", cfg != nil, tt.wantTLS)
			}
			if cfg != nil && cfg.InsecureSkipVerify != tt.wantInsecure {
				t.Errorf("InsecureSkipVerify = %v, want %v", cfg.InsecureSkipVerify, tt.wantInsecure)
			}
		})
	}

	if _, err := TLSConfigFromURL("://bad", false); err == nil {
		t.Error("expected an error for a malformed url")
	}
}
