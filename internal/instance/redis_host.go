package instance

import (
	"fmt"
	"os"
)

// RedisHost returns the host that reaches published container ports: the Docker
// host gateway when running inside a container, localhost otherwise.
func RedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// RedisURL builds the blackboard Redis URL for a published port.
func RedisURL(port int) string {
	return fmt.Sprintf("redis://%s:%d", RedisHost(), port)
}
