package version

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo_StableAcrossCalls(t *testing.T) {
	first := GetInfo()
	second := GetInfo()

	assert.NotEmpty(t, first.Version)
	assert.NotEmpty(t, first.Hostname)
	assert.Equal(t, first.InstanceID, second.InstanceID)

	_, err := uuid.Parse(first.InstanceID)
	require.NoError(t, err)
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "tagged build",
			info: Info{Version: "v0.4.0", GitCommit: "9f1c2ab", BuildDate: "2026-09-30T08:00:00Z"},
			want: "gatekeeper v0.4.0 (commit 9f1c2ab, built 2026-09-30T08:00:00Z)",
		},
		{
			name: "local build",
			info: Info{Version: "unknown", GitCommit: "unknown", BuildDate: "unknown"},
			want: "gatekeeper unknown (commit unknown, built unknown)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}
