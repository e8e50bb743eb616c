package config

import (
	"testing"
)

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host     string
		inDocker bool
		expected string
	}{
		{"localhost", false, "localhost"},
		{"127.0.0.1", false, "127.0.0.1"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"::1", true, "host.docker.internal"},
		{"postgis.internal", true, "postgis.internal"},
		{"192.168.1.100", true, "192.168.1.100"},
		{"", true, ""},
	}

	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.inDocker); got != tt.expected {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.inDocker, got, tt.expected)
		}
	}
}

func TestResolveServiceHosts(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "db.example.com"},
		Redis:    RedisConfig{Host: ""},
	}

	cfg.ResolveServiceHosts()

	// Non-loopback hosts are never rewritten, in Docker or not
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("Database.Host = %q, want unchanged", cfg.Database.Host)
	}
	if cfg.Redis.Host != "" {
		t.Errorf("Redis.Host = %q, want empty to keep Redis disabled", cfg.Redis.Host)
	}
}

func TestResolveHostForDocker_MatchesEnvironment(t *testing.T) {
	want := "localhost"
	if IsRunningInDocker() {
		want = "host.docker.internal"
	}
	if got := ResolveHostForDocker("localhost"); got != want {
		t.Errorf("ResolveHostForDocker(localhost) = %q, want %q", got, want)
	}
}
