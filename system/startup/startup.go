// Package startup installs a boot-time script that parks every relay pin at
// its inactive level before the controller starts.
package startup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/thatsimonsguy/propagator/internal/model"
)

// BootScript renders a bash script that sets each relay pin to an output at
// its inactive level with pinctrl.
func BootScript(names []string, relays []model.GPIOPin) string {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Propagator relay pin configuration at boot", "")

	for i, pin := range relays {
		drive := "dl"
		if !pin.ActiveHigh {
			drive = "dh"
		}
		label := fmt.Sprintf("relay %d", i+1)
		if i < len(names) {
			label = names[i]
		}
		lines = append(lines, fmt.Sprintf("# %s", label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", pin.Number, drive))
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n") + "\n"
}

func WriteBootScript(path string, names []string, relays []model.GPIOPin) error {
	return os.WriteFile(path, []byte(BootScript(names, relays)), 0755)
}

// BootUnit is a oneshot systemd unit running the boot script.
func BootUnit(scriptPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Park propagator relay pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)
}

func InstallBootService(scriptPath, unitPath string) error {
	return os.WriteFile(unitPath, []byte(BootUnit(scriptPath)), 0644)
}

func RunBootScript(scriptPath string) error {
	cmd := exec.Command("/bin/bash", scriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
