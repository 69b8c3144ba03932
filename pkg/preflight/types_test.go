package preflight

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.Greater(t, StatusError.Severity(), StatusWarning.Severity())
	assert.Greater(t, StatusWarning.Severity(), StatusOK.Severity())
	assert.Equal(t, 0, Status("").Severity())
}

func TestResultAccessors(t *testing.T) {
	r := Result{
		Overall: StatusError,
		Checks: []CheckResult{
			{Name: CheckSize, Status: StatusOK},
			{Name: CheckFormat, Status: StatusError, Message: "not allowed"},
			{Name: CheckDPI, Status: StatusWarning},
			{Name: CheckTransparency, Status: StatusWarning},
		},
	}

	c, ok := r.Check(CheckFormat)
	require.True(t, ok)
	assert.Equal(t, "not allowed", c.Message)

	_, ok = r.Check(CheckPageCount)
	assert.False(t, ok)

	require.Len(t, r.Failed(), 1)
	assert.Equal(t, CheckFormat, r.Failed()[0].Name)
	assert.Len(t, r.Warnings(), 2)
}

func TestResultJSONOmitsLocalPaths(t *testing.T) {
	data, err := json.Marshal(Result{Overall: StatusOK, Checks: []CheckResult{{Name: CheckSize, Status: StatusOK}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"overall":"ok","checks":[{"name":"file_size","status":"ok"}]}`, string(data))
}
