package instance

import (
	"fmt"
	"os"
)

// GetRedisHost returns the hostname under which a run's published Redis port is
// reachable from this process. Inside a container that is the Docker host.
func GetRedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// GetRedisURL constructs the host-side Redis URL for a published port.
func GetRedisURL(port int) string {
	return fmt.Sprintf("redis://%s:%d", GetRedisHost(), port)
}
