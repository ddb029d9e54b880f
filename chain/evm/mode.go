package evm

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects where a deployment is executed.
type Mode string

const (
	// ModeFork runs against a disposable fork of the target network. Nothing reaches the real
	// chain and no private key is needed.
	ModeFork Mode = "fork"
	// ModeProduction signs and broadcasts to the real network.
	ModeProduction Mode = "production"
	// ModeSimulated runs against an in-memory go-ethereum backend. It is only produced by test
	// helpers.
	ModeSimulated Mode = "simulated"
)

// ErrUnknownMode is returned by ParseMode for unrecognised input.
var ErrUnknownMode = errors.New("unknown execution mode")

// ParseMode parses the textual mode accepted on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fork", "forked":
		return ModeFork, nil
	case "production", "prod":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("%w: %q (want fork or production)", ErrUnknownMode, s)
	}
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}
