// Package shutdown schedules and cancels operating system shutdowns.
package shutdown

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	sudo    = "/usr/bin/sudo"
	command = "/sbin/shutdown"
)

var run = func(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

var exit = os.Exit

// Commander runs shutdown through sudo; the service user needs a sudoers
// entry for /sbin/shutdown.
type Commander struct{}

// Schedule powers the machine off in one minute.
func (Commander) Schedule() error {
	return invoke("+1")
}

// Cancel aborts a pending shutdown.
func (Commander) Cancel() error {
	return invoke("-c")
}

func invoke(arg string) error {
	out, err := run(sudo, command, arg)
	output := strings.TrimSpace(string(out))
	if err != nil {
		log.Error().Err(err).Str("arg", arg).Str("output", output).Msg("Shutdown command failed")
		return fmt.Errorf("shutdown %s: %w", arg, err)
	}
	log.Info().Str("arg", arg).Str("output", output).Msg("Shutdown command issued")
	return nil
}

// ExitWithError logs a fatal startup problem and exits. cleanup runs first
// when given.
func ExitWithError(err error, msg string, cleanup ...func()) {
	log.Error().Err(err).Msg(msg)
	for _, fn := range cleanup {
		fn()
	}
	exit(1)
}
