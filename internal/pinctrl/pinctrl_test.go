package pinctrl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
 0: ip    pu | hi // ID_SDA/GPIO0 = input
 1: ip    pu | hi // ID_SCL/GPIO1 = input
 2: no    pu | -- // GPIO2 = none
 4: ip    pn | lo // GPIO4 = input
 5: op dh pu | hi // GPIO5 = output
17: op dl pd | lo // GPIO17 = output
26: op dl pn | lo // GPIO26 = output
`

func TestParseGetOutput(t *testing.T) {
	states, err := parseGetOutput(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, states, 7)

	assert.Equal(t, PinState{Pin: 5, Mode: "op", Pull: "pu", Drive: "dh", Level: "hi", Comment: "GPIO5 = output"}, states[5])
	assert.Equal(t, "--", states[2].Level)
	assert.Equal(t, "no", states[2].Mode)
	assert.Equal(t, "dl", states[26].Drive)
	assert.Equal(t, "pn", states[26].Pull)
}

func TestParseGetOutput_SkipsNoise(t *testing.T) {
	states, err := parseGetOutput(strings.NewReader("garbage\n17: op dl pd | lo // GPIO17 = output\n"))
	require.NoError(t, err)
	assert.Len(t, states, 1)
	assert.Equal(t, "lo", states[17].Level)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"0", false},
		{"1", true},
		{"\n1\n", true},
		{"\n0\n", false},
	}
	for _, tc := range tests {
		result, err := parseLevel(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.expected, result, tc.input)
	}

	_, err := parseLevel("x")
	assert.Error(t, err)
}

func TestReadAllPins_UsesCommand(t *testing.T) {
	orig := runPinctrl
	defer func() { runPinctrl = orig }()

	var gotArgs []string
	runPinctrl = func(args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(sample), nil
	}

	states, err := ReadAllPins()
	require.NoError(t, err)
	assert.Equal(t, []string{"get"}, gotArgs)
	assert.Equal(t, "op", states[17].Mode)

	runPinctrl = func(args ...string) ([]byte, error) {
		return nil, errors.New("not found")
	}
	_, err = ReadAllPins()
	assert.ErrorContains(t, err, "pinctrl get")
}

func TestReadLevel(t *testing.T) {
	orig := runPinctrl
	defer func() { runPinctrl = orig }()

	runPinctrl = func(args ...string) ([]byte, error) {
		assert.Equal(t, []string{"lev", "17"}, args)
		return []byte("1\n"), nil
	}
	high, err := ReadLevel(17)
	require.NoError(t, err)
	assert.True(t, high)
}
