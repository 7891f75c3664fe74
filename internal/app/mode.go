package app

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is how the deployment is carried out.
type Mode string

const (
	ModeDocker Mode = "docker"
	ModeLocal  Mode = "local"
	ModeManual Mode = "manual"
)

// Modes lists the modes in the order they are offered to the operator.
var Modes = []Mode{ModeDocker, ModeLocal, ModeManual}

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (use docker, local or manual)", s)
}

// ModeSelector backs the mutually exclusive --docker, --local and --manual
// flags. The first mode flag on the command line wins; later ones are
// recorded so the caller can warn about them.
type ModeSelector struct {
	mode    Mode
	ignored []Mode
}

// Flag returns the flag value that selects m. Register it with NoOptDefVal
// "true" so it behaves like a plain boolean switch.
func (s *ModeSelector) Flag(m Mode) *ModeFlag {
	return &ModeFlag{sel: s, mode: m}
}

// Mode returns the selected mode, or "" if no mode flag was given.
func (s *ModeSelector) Mode() Mode {
	return s.mode
}

// Ignored returns the mode flags that lost to an earlier one.
func (s *ModeSelector) Ignored() []Mode {
	return s.ignored
}

func (s *ModeSelector) choose(m Mode) {
	switch s.mode {
	case "":
		s.mode = m
	case m:
	default:
		s.ignored = append(s.ignored, m)
	}
}

// ModeFlag is one mode switch of a ModeSelector. It implements pflag.Value.
type ModeFlag struct {
	sel  *ModeSelector
	mode Mode
	set  bool
}

func (f *ModeFlag) String() string {
	return strconv.FormatBool(f.set)
}

func (f *ModeFlag) Set(v string) error {
	on, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	if !on {
		return nil
	}
	f.set = true
	f.sel.choose(f.mode)
	return nil
}

func (f *ModeFlag) Type() string {
	return "bool"
}
