package instance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	testCases := []struct {
		name      string
		inputName string
		errMsg    string
	}{
		{"default name", DefaultName, ""},
		{"with hyphens", "base-sepolia", ""},
		{"with numbers", "tank-84532", ""},
		{"single character", "a", ""},
		{"empty", "", "cannot be empty"},
		{"uppercase", "Prod", "must be lowercase"},
		{"leading hyphen", "-prod", "not at start/end"},
		{"trailing hyphen", "prod-", "not at start/end"},
		{"underscore", "prod_env", "must be lowercase alphanumeric"},
		{"colon would break key prefix", "a:b", "must be lowercase alphanumeric"},
		{"too long", strings.Repeat("a", MaxNameLength+1), "too long"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.inputName)
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestValidateName_MaxLength(t *testing.T) {
	assert.NoError(t, ValidateName(strings.Repeat("a", MaxNameLength)))
}
