// Package text formats the help text of the CLI commands.
package text

import "strings"

// Indentation prefixes every line of an example.
const Indentation = `  `

// LongDesc trims the surrounding whitespace of a long description.
func LongDesc(s string) string {
	return strings.TrimSpace(s)
}

// Examples trims every line of an example block and indents it.
func Examples(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = Indentation + strings.TrimSpace(line)
	}

	return strings.Join(lines, "\n")
}
