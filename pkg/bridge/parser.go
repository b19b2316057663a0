// Copyright 2024-2026 Aiku AI

package bridge

import "strings"

// ArgumentSpec describes one command argument. Named arguments are located
// anywhere on the line by a -<name> marker; positional arguments are read
// left to right after the command word. A nil Validator accepts anything.
type ArgumentSpec struct {
	Name        string
	RequireName bool
	Validator   func(string) bool
}

// Args builds positional argument specs from names.
func Args(names ...string) []ArgumentSpec {
	specs := make([]ArgumentSpec, len(names))
	for i, name := range names {
		specs[i] = ArgumentSpec{Name: name}
	}
	return specs
}

// ParseArguments extracts the given arguments from a control line. The line
// includes the command word; positional parsing starts after it. Values may
// be quoted with ", ` or ', in which case they run to the matching quote
// instead of the default terminator. Reading past end of input yields an
// empty string. A failing validator produces *InvalidArgumentError.
func ParseArguments(line string, specs []ArgumentSpec) (map[string]string, error) {
	result := make(map[string]string, len(specs))
	// Skip the command word for positional reads.
	pos := skipWhitespace(line, 0)
	for pos < len(line) && line[pos] != ' ' {
		pos++
	}

	for _, spec := range specs {
		pos = skipWhitespace(line, pos)
		var value string
		if spec.RequireName {
			value = readNamed(line, spec.Name)
		} else {
			value, pos = readUntil(line, pos, ' ')
		}
		if spec.Validator != nil && !spec.Validator(value) {
			return nil, &InvalidArgumentError{Name: spec.Name}
		}
		result[spec.Name] = value
	}
	return result, nil
}

// readNamed locates -<name> on the line and reads its value, which runs to
// the next '-' unless quoted. Missing markers yield an empty string.
func readNamed(line, name string) string {
	marker := "-" + name
	idx := strings.Index(line, marker)
	if idx < 0 {
		return ""
	}
	start := skipWhitespace(line, idx+len(marker))
	value, _ := readUntil(line, start, '-')
	return value
}

// readUntil reads from start up to the stop character. When the value
// begins with a quote character, the terminator becomes that quote and the
// quotes are not part of the value.
func readUntil(line string, start int, stop byte) (string, int) {
	if start >= len(line) {
		return "", start
	}
	if c := line[start]; c == '"' || c == '`' || c == '\'' {
		stop = c
		start++
	}
	for i := start; i < len(line); i++ {
		if line[i] == stop {
			return line[start:i], i
		}
	}
	return line[start:], len(line)
}

func skipWhitespace(line string, pos int) int {
	for pos < len(line) && line[pos] == ' ' {
		pos++
	}
	return pos
}
