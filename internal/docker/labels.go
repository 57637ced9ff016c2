package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for thinktank resources
const (
	LabelProject       = "thinktank.project"
	LabelInstanceName  = "thinktank.instance.name"
	LabelInstanceRunID = "thinktank.instance.run_id"
	LabelComponent     = "thinktank.component"
	LabelRedisPort     = "thinktank.redis.port"
)

// ComponentRedis labels the blackboard Redis container.
const ComponentRedis = "redis"

// BuildLabels creates the standard label set for thinktank resources.
// component may be empty for instance-wide resources such as the network.
func BuildLabels(instanceName, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelInstanceRunID: runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for one `thinktank up`.
func GenerateRunID() string {
	return uuid.New().String()
}

// NetworkName returns the Docker network name for an instance
func NetworkName(instanceName string) string {
	return fmt.Sprintf("thinktank-network-%s", instanceName)
}

// RedisContainerName returns the Redis container name for an instance
func RedisContainerName(instanceName string) string {
	return fmt.Sprintf("thinktank-redis-%s", instanceName)
}
