package casa

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackID_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    TrackID
		wantErr bool
	}{
		{"string", `"track-7"`, "track-7", false},
		{"integer", `42`, "42", false},
		{"bool rejected", `true`, "", true},
		{"object rejected", `{}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var id TrackID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestTrajectory_DecodesNumericID(t *testing.T) {
	t.Parallel()

	var tr Trajectory
	err := json.Unmarshal([]byte(`{"id": 3, "morphology": "abnormal", "samples": [{"frame": 0, "x": 1.5, "y": 2}]}`), &tr)
	require.NoError(t, err)
	assert.Equal(t, TrackIDFromInt(3), tr.ID)
	assert.Equal(t, MorphologyAbnormal, tr.Morphology)
	assert.Equal(t, []Sample{{Frame: 0, X: 1.5, Y: 2}}, tr.Samples)
}

func TestMorphology_IsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, MorphologyUnlabelled.IsValid())
	assert.True(t, MorphologyNormal.IsValid())
	assert.True(t, MorphologyAbnormal.IsValid())
	assert.False(t, Morphology("Normal").IsValid())
}
