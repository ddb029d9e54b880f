package evm

import (
	"errors"
	"fmt"
	"strings"
)

// URLSchemePreference defines URL scheme preferences for RPC connections.
type URLSchemePreference int

const (
	// URLSchemePreferenceNone uses whichever URL is set, preferring WS.
	URLSchemePreferenceNone URLSchemePreference = iota
	URLSchemePreferenceWS
	URLSchemePreferenceHTTP
)

// URLSchemePreferenceFromString converts a string to URLSchemePreference.
func URLSchemePreferenceFromString(s string) (URLSchemePreference, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return URLSchemePreferenceNone, nil
	case "ws":
		return URLSchemePreferenceWS, nil
	case "http":
		return URLSchemePreferenceHTTP, nil
	default:
		return URLSchemePreferenceNone, fmt.Errorf("invalid URL scheme preference: %s", s)
	}
}

// RPC represents a single RPC endpoint configuration.
type RPC struct {
	Name               string
	WSURL              string
	HTTPURL            string
	PreferredURLScheme URLSchemePreference
}

// ToEndpoint returns the URL to dial for the RPC based on its scheme preference.
func (r RPC) ToEndpoint() (string, error) {
	switch r.PreferredURLScheme {
	case URLSchemePreferenceHTTP:
		if r.HTTPURL == "" {
			return "", fmt.Errorf("rpc %q prefers http but has no http url", r.Name)
		}

		return r.HTTPURL, nil
	case URLSchemePreferenceWS:
		if r.WSURL == "" {
			return "", fmt.Errorf("rpc %q prefers ws but has no ws url", r.Name)
		}

		return r.WSURL, nil
	case URLSchemePreferenceNone:
		if r.WSURL != "" {
			return r.WSURL, nil
		}
		if r.HTTPURL != "" {
			return r.HTTPURL, nil
		}

		return "", errors.New("rpc has neither a ws nor an http url")
	default:
		return "", fmt.Errorf("unknown URL scheme preference %d", r.PreferredURLScheme)
	}
}

// RPCConfig is a configuration for a chain.
// It contains a chain selector and a list of RPCs
type RPCConfig struct {
	ChainSelector uint64
	RPCs          []RPC
}
