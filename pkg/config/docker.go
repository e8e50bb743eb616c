package config

import (
	"os"
	"sync"
)

// dockerHostAlias reaches services published on the Docker host.
const dockerHostAlias = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps a loopback host to host.docker.internal when
// running inside a container. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostAlias
	}
	return host
}

// ResolveServiceHosts rewrites the PostgreSQL and Redis hosts with
// ResolveHostForDocker. An empty Redis host stays empty so Redis remains disabled.
func (c *Config) ResolveServiceHosts() {
	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	if c.Redis.Host != "" {
		c.Redis.Host = ResolveHostForDocker(c.Redis.Host)
	}
}
