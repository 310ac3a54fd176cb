package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrate(t *testing.T) {
	ch := ChannelConfig{CalibrationOffset: 2, MeasuredOffset: 1}
	assert.Equal(t, 20.0, ch.Calibrate(19))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("06:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(6*time.Hour+30*time.Minute), tod)
	assert.Equal(t, "06:30", tod.String())

	_, err = ParseTimeOfDay("6.30")
	assert.Error(t, err)
}

func TestReadingString(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		want    string
	}{
		{"pending", Reading{}, ""},
		{"measured", Measured(21.25), "21.25"},
		{"whole number", Measured(20), "20"},
		{"fault", Faulted("No Connection"), "Error: No Connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reading.String())
		})
	}
}
