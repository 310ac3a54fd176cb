package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thatsimonsguy/propagator/db"
	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, relays string
	var sessionID int64
	var activeLow bool
	flag.StringVar(&dbPath, "db", "sessions.db", "Path to the SQLite session index")
	flag.StringVar(&command, "cmd", "", "Command to run: list-sessions, show-session, boot-script")
	flag.Int64Var(&sessionID, "session", 0, "Session ID for show-session")
	flag.StringVar(&relays, "relays", "", "Comma separated relay pins for boot-script")
	flag.BoolVar(&activeLow, "active-low", false, "Relays are active low (boot-script)")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of propagator-debug:")
		fmt.Println("  -db string\tPath to the SQLite session index (default 'sessions.db')")
		fmt.Println("  -cmd string\tCommand to run: list-sessions, show-session, boot-script")
		fmt.Println("  -session int\tSession ID for show-session")
		fmt.Println("  -relays string\tComma separated relay pins for boot-script")
		fmt.Println("  -active-low\tRelays are active low (boot-script)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "list-sessions":
		err = listSessions(dbPath)
	case "show-session":
		if sessionID == 0 {
			fmt.Println("Error: session ID is required")
			os.Exit(1)
		}
		err = showSession(dbPath, sessionID)
	case "boot-script":
		err = printBootScript(relays, !activeLow)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func listSessions(dbPath string) error {
	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}
	for _, s := range sessions {
		stopped := "running"
		if !s.StoppedAt.IsZero() {
			stopped = fmt.Sprintf("%s (%s)", s.StoppedAt.Format(time.DateTime), s.StopReason)
		}
		fmt.Printf("%4d  %s  %-32s  %5d rows  %s\n", s.ID, s.StartedAt.Format(time.DateTime), s.File, s.Rows, stopped)
	}
	return nil
}

func showSession(dbPath string, id int64) error {
	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.GetSession(id)
	if err != nil {
		return err
	}
	rows, err := store.SessionRows(id)
	if err != nil {
		return err
	}

	fmt.Printf("Session %d: %s, %d rows\n", sess.ID, sess.File, sess.Rows)
	for _, r := range rows {
		values := make([]string, len(r.Channels))
		for i, ch := range r.Channels {
			values[i] = ch.Name + "=" + ch.Value
		}
		fmt.Printf("%s  set=%s duty=%s air=%s min=%s max=%s  %s\n",
			r.RecordedAt.Format(time.DateTime), model.FormatTemperature(r.Setpoint),
			r.Duty, r.Air, r.Min, r.Max, strings.Join(values, " "))
	}
	return nil
}

func printBootScript(relays string, activeHigh bool) error {
	if relays == "" {
		return fmt.Errorf("no relay pins given")
	}
	var pins []model.GPIOPin
	for _, field := range strings.Split(relays, ",") {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(field), "%d", &n); err != nil {
			return fmt.Errorf("bad relay pin %q", field)
		}
		pins = append(pins, model.GPIOPin{Number: n, ActiveHigh: activeHigh})
	}
	fmt.Print(startup.BootScript(nil, pins))
	return nil
}
