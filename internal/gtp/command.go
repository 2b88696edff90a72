package gtp

import (
	"fmt"
	"strings"
)

// Command is a parsed GTP command: an optional identifier, a lowercase
// command name, and an ordered argument list. HasID distinguishes an
// absent identifier from an empty-string one (GTP identifiers are never
// empty strings — they are decimal digit runs — but the distinction
// matters for round-tripping through BuildCommand).
type Command struct {
	HasID bool
	ID    string
	Name  string
	Args  []string
}

// BuildCommand serializes name, args, and an optional identifier into a
// single GTP command line with no trailing newline: "[id ]name[ arg1 arg2 …]".
// id may be nil to omit the identifier.
func BuildCommand(name string, args []string, id *string) (string, error) {
	if name == "" || containsASCIIWhitespace(name) {
		return "", fmt.Errorf("%w: command name must be non-empty and contain no whitespace", ErrInvalidArgument)
	}
	if id != nil && !isAllDigits(*id) {
		return "", fmt.Errorf("%w: identifier %q must match [0-9]+", ErrInvalidArgument, *id)
	}
	for _, a := range args {
		if containsASCIIWhitespace(a) || containsControl(a) {
			return "", fmt.Errorf("%w: argument %q contains whitespace or control characters", ErrInvalidArgument, a)
		}
	}

	var b strings.Builder
	if id != nil {
		b.WriteString(*id)
		b.WriteByte(' ')
	}
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String(), nil
}

// ParseCommandLine splits line on ASCII whitespace into an identifier
// (optional), a command name, and arguments. The first token is the
// identifier only if it is all-digits AND a second token follows (the
// name); otherwise the first token is the name. The name is lowercased
// for canonical comparison; argument case is preserved.
func ParseCommandLine(line string) (Command, error) {
	tokens := splitASCIIWhitespace(line)
	if len(tokens) == 0 {
		return Command{}, fmt.Errorf("%w: empty or whitespace-only command line", ErrInvalidArgument)
	}

	var cmd Command
	if isAllDigits(tokens[0]) {
		if len(tokens) < 2 {
			return Command{}, fmt.Errorf("%w: identifier %q with no command name", ErrInvalidArgument, tokens[0])
		}
		cmd.HasID = true
		cmd.ID = tokens[0]
		cmd.Name = strings.ToLower(tokens[1])
		cmd.Args = tokens[2:]
	} else {
		cmd.Name = strings.ToLower(tokens[0])
		cmd.Args = tokens[1:]
	}
	return cmd, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func containsASCIIWhitespace(s string) bool {
	for _, r := range s {
		if isASCIISpace(r) {
			return true
		}
	}
	return false
}

func containsControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

func splitASCIIWhitespace(s string) []string {
	return strings.FieldsFunc(s, isASCIISpace)
}
