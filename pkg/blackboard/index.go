package blackboard

// Submission index utilities
//
// Submissions are indexed in Redis ZSETs where:
// - Members: submission IDs
// - Score: the submission's creation time in Unix milliseconds (as float64)
//
// Millisecond timestamps stay well inside float64's exact integer range, so the
// score converts back without loss. This enables time-window queries for
// history and newest-first listing per tank.

// IndexScore converts a creation timestamp to a ZSET score.
func IndexScore(createdAtMs int64) float64 {
	return float64(createdAtMs)
}

// CreatedAtFromScore converts a ZSET score back to a creation timestamp.
func CreatedAtFromScore(score float64) int64 {
	return int64(score)
}
