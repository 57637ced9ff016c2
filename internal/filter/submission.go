package filter

import (
	"path/filepath"
	"strings"

	"github.com/dyluth/thinktank/pkg/blackboard"
)

// Criteria defines filtering criteria for submissions.
// All filters are ANDed together - a submission must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	Tank             string // Tank address, case-insensitive, empty = no filter
	Contributor      string // Contributor address, case-insensitive, empty = no filter
	StateGlob        string // Glob over the state reached, e.g. "sign*", empty = no filter
	Verdict          string // Exact verdict (accept, reject, error), empty = no filter
	FailedOnly       bool   // Only submissions whose run errored
}

// Matches returns true if the submission matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(s *blackboard.Submission) bool {
	if c.SinceTimestampMs > 0 && s.CreatedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && s.CreatedAtMs > c.UntilTimestampMs {
		return false
	}

	if c.Tank != "" && !strings.EqualFold(c.Tank, s.Tank) {
		return false
	}
	if c.Contributor != "" && !strings.EqualFold(c.Contributor, s.Contributor) {
		return false
	}

	if c.StateGlob != "" {
		matched, err := filepath.Match(c.StateGlob, string(s.State))
		if err != nil || !matched {
			return false
		}
	}

	if c.Verdict != "" && s.Verdict != c.Verdict {
		return false
	}

	if c.FailedOnly && !s.Failed() {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.Tank != "" ||
		c.Contributor != "" ||
		c.StateGlob != "" ||
		c.Verdict != "" ||
		c.FailedOnly
}
