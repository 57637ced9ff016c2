package blackboard

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionHashRoundTrip(t *testing.T) {
	s := newSubmission(tankA, StateSigning, 1_700_000_000_000)
	s.FailureKind = "signing"
	s.Error = "txbuilder.Build: signing failed: quorum not reached"
	s.WeightedScore = 6.25

	hash := SubmissionToHash(s)
	strs := make(map[string]string, len(hash))
	for k, v := range hash {
		switch val := v.(type) {
		case string:
			strs[k] = val
		case int64:
			strs[k] = strconv.FormatInt(val, 10)
		}
	}

	got, err := HashToSubmission(strs)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestHashToSubmission_Malformed(t *testing.T) {
	_, err := HashToSubmission(map[string]string{"weighted_score": "high", "created_at_ms": "1"})
	assert.Error(t, err)

	_, err = HashToSubmission(map[string]string{"created_at_ms": "yesterday"})
	assert.Error(t, err)
}
