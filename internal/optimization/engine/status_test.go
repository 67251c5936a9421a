package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusNames(t *testing.T) {
	tests := []struct {
		status Status
		name   string
		ok     bool
	}{
		{Success, "SUCCESS", true},
		{XtolReached, "XTOL_REACHED", true},
		{MaxevalReached, "MAXEVAL_REACHED", true},
		{Failure, "FAILURE", false},
		{RoundoffLimited, "ROUNDOFF_LIMITED", false},
		{ForcedStop, "FORCED_STOP", false},
		{Unknown, "UNKNOWN", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.ok, tt.status.OK())
			assert.Equal(t, tt.status, ParseStatus(tt.name))
		})
	}

	assert.Equal(t, Unknown, ParseStatus("not a status"))
	assert.Equal(t, FtolReached, ParseStatus(" ftol_reached"))
	assert.Equal(t, "Status(42)", Status(42).String())
	assert.True(t, MaxtimeReached.LimitReached())
	assert.False(t, Success.LimitReached())
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"status": RoundoffLimited})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ROUNDOFF_LIMITED"}`, string(b))
}
