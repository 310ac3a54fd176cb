package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/propagator/internal/model"
)

func TestBootScript(t *testing.T) {
	script := BootScript(
		[]string{"Tray 1"},
		[]model.GPIOPin{{Number: 17, ActiveHigh: true}, {Number: 27, ActiveHigh: false}},
	)

	assert.Equal(t, `#!/bin/bash

# Propagator relay pin configuration at boot

# Tray 1
pinctrl set 17 op pn dl

# relay 2
pinctrl set 27 op pn dh

`, script)
}

func TestWriteBootScriptAndUnit(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "propagator-pins.sh")
	unit := filepath.Join(dir, "propagator-pins.service")

	require.NoError(t, WriteBootScript(script, nil, []model.GPIOPin{{Number: 17, ActiveHigh: true}}))
	require.NoError(t, InstallBootService(script, unit))

	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100, "script is executable")

	contents, err := os.ReadFile(unit)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "ExecStart="+script)
	assert.Contains(t, string(contents), "Type=oneshot")
}
