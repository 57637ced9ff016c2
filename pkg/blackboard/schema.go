package blackboard

import (
	"fmt"
	"strings"
)

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to enable
// multiple thinktank deployments to safely coexist on a single Redis server.
//
// Key pattern: thinktank:{instance_name}:{entity}:{id}
// Channel pattern: thinktank:{instance_name}:{event_type}_events
//
// Tank addresses are lower-cased so checksummed and plain hex forms map to the
// same keys.

// SubmissionKey returns the Redis key for a submission.
// Pattern: thinktank:{instance_name}:submission:{submission_id}
func SubmissionKey(instanceName, submissionID string) string {
	return fmt.Sprintf("thinktank:%s:submission:%s", instanceName, submissionID)
}

// SubmissionsIndexKey returns the Redis key for the instance-wide submission ZSET.
// Pattern: thinktank:{instance_name}:submissions
func SubmissionsIndexKey(instanceName string) string {
	return fmt.Sprintf("thinktank:%s:submissions", instanceName)
}

// TankSubmissionsKey returns the Redis key for a tank's submission ZSET.
// Pattern: thinktank:{instance_name}:tank:{tank}:submissions
func TankSubmissionsKey(instanceName, tank string) string {
	return fmt.Sprintf("thinktank:%s:tank:%s:submissions", instanceName, normalizeTank(tank))
}

// TankLockKey returns the Redis key guarding a tank's digest.
// Pattern: thinktank:{instance_name}:tank:{tank}:lock
func TankLockKey(instanceName, tank string) string {
	return fmt.Sprintf("thinktank:%s:tank:%s:lock", instanceName, normalizeTank(tank))
}

// SubmissionEventsChannel returns the Pub/Sub channel name for submission events.
// Pattern: thinktank:{instance_name}:submission_events
func SubmissionEventsChannel(instanceName string) string {
	return fmt.Sprintf("thinktank:%s:submission_events", instanceName)
}

func normalizeTank(tank string) string {
	return strings.ToLower(tank)
}
