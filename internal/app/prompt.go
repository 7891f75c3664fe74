package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cvectl/internal/console"
	"cvectl/pkg/logging"

	"golang.org/x/term"
)

// ErrNoMode is returned when the operator leaves the mode prompt without
// choosing.
var ErrNoMode = errors.New("no deployment mode selected")

// For mocking in tests
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = term.ReadPassword
)

var modeDescriptions = map[Mode]string{
	ModeDocker: "Docker (recommended): build and run every service in containers",
	ModeLocal:  "Local: run the services as Python processes on this host",
	ModeManual: "Manual: print the deployment steps and do them yourself",
}

// PromptMode asks the operator for a mode until a valid choice is read. Both
// the number and the mode name are accepted. Invalid input redisplays the
// menu; end of input returns ErrNoMode.
func PromptMode(in io.Reader, p *console.Printer) (Mode, error) {
	scanner := bufio.NewScanner(in)
	for {
		p.Heading("Choose a deployment mode")
		for i, m := range Modes {
			p.Hint(fmt.Sprintf("%d)", i+1), modeDescriptions[m])
		}
		fmt.Fprintf(p.Writer(), "Selection [1-%d]: ", len(Modes))

		if !scanner.Scan() {
			fmt.Fprintln(p.Writer())
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read selection: %w", err)
			}
			return "", ErrNoMode
		}

		answer := strings.TrimSpace(scanner.Text())
		for i, m := range Modes {
			if answer == fmt.Sprint(i+1) || strings.EqualFold(answer, string(m)) {
				return m, nil
			}
		}
		p.Warning("Invalid choice %q, please enter a number between 1 and %d", answer, len(Modes))
	}
}

// ResolveMode settles the deployment mode. An explicit flag wins. Without one,
// --auto or a non-interactive stdin selects docker; otherwise the operator is
// prompted.
func ResolveMode(selected Mode, auto bool, in io.Reader, p *console.Printer) (Mode, error) {
	if selected != "" {
		return selected, nil
	}
	if auto || !stdinIsTerminal() {
		logging.Info("Setup", "No mode given, defaulting to %s", ModeDocker)
		return ModeDocker, nil
	}
	return PromptMode(in, p)
}

// PromptNVDKey asks for the optional NVD API key without echoing it. It
// returns "" when stdin is not a terminal.
func PromptNVDKey(p *console.Printer) (string, error) {
	if !stdinIsTerminal() {
		return "", nil
	}
	fmt.Fprint(p.Writer(), "Enter your NVD API key (optional, press Enter to skip): ")
	key, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.Writer())
	if err != nil {
		return "", fmt.Errorf("failed to read NVD API key: %w", err)
	}
	return strings.TrimSpace(string(key)), nil
}
