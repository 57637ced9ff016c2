package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dyluth/thinktank/pkg/blackboard"
)

func TestCriteria_Matches(t *testing.T) {
	sub := &blackboard.Submission{
		Tank:        "0x1111111111111111111111111111111111111111",
		Contributor: "0x2222222222222222222222222222222222222222",
		State:       blackboard.StateSigning,
		Verdict:     "accept",
		FailureKind: "Network",
		CreatedAtMs: 5000,
	}

	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"no filters", Criteria{}, true},
		{"since before", Criteria{SinceTimestampMs: 4000}, true},
		{"since after", Criteria{SinceTimestampMs: 6000}, false},
		{"until after", Criteria{UntilTimestampMs: 6000}, true},
		{"until before", Criteria{UntilTimestampMs: 4000}, false},
		{"tank case-insensitive", Criteria{Tank: "0x1111111111111111111111111111111111111111"}, true},
		{"other tank", Criteria{Tank: "0x3333333333333333333333333333333333333333"}, false},
		{"contributor", Criteria{Contributor: "0x2222222222222222222222222222222222222222"}, true},
		{"state glob", Criteria{StateGlob: "sign*"}, true},
		{"state glob miss", Criteria{StateGlob: "verified"}, false},
		{"bad glob", Criteria{StateGlob: "["}, false},
		{"verdict", Criteria{Verdict: "accept"}, true},
		{"verdict miss", Criteria{Verdict: "reject"}, false},
		{"failed only", Criteria{FailedOnly: true}, true},
		{"combined", Criteria{SinceTimestampMs: 1000, Verdict: "accept", StateGlob: "s*"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(sub))
		})
	}

	ok := &blackboard.Submission{State: blackboard.StateVerified, Verdict: "accept", TxHash: "0xabc"}
	assert.False(t, (&Criteria{FailedOnly: true}).Matches(ok))
}

func TestCriteria_HasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{Verdict: "reject"}).HasFilters())
	assert.True(t, (&Criteria{FailedOnly: true}).HasFilters())
	assert.True(t, (&Criteria{SinceTimestampMs: 1}).HasFilters())
}
