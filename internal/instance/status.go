package instance

import (
	"github.com/docker/docker/api/types"
)

// Status is the health of an instance's containers.
type Status string

const (
	StatusRunning  Status = "Running"  // every container is running
	StatusDegraded Status = "Degraded" // some containers are stopped
	StatusStopped  Status = "Stopped"  // no container is running, or none exist
)

// DetermineStatus summarises the states of an instance's containers.
func DetermineStatus(containers []types.Container) Status {
	running := 0
	for _, c := range containers {
		if c.State == "running" {
			running++
		}
	}

	switch {
	case len(containers) > 0 && running == len(containers):
		return StatusRunning
	case running > 0:
		return StatusDegraded
	default:
		return StatusStopped
	}
}

// Info describes a local blackboard instance.
type Info struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	RedisPort int    `json:"redisPort"`
	RedisURL  string `json:"redisUrl"`
}
