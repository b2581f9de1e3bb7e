// Package format expands positional templates such as "fetched {0} in {1}".
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("invalid format string")
	ErrArgIndex      = errors.New("argument index is out of range in format")
)

var (
	validTemplate = regexp.MustCompile(`^(?:(?:(?:[^{}]|\{\{|\}\})+)|(?:\{[0-9]+\}))+$`)
	templatePart  = regexp.MustCompile(`((?:[^{}]|\{\{|\}\})+)|\{([0-9]+)\}`)
	braceEscape   = strings.NewReplacer("{{", "{", "}}", "}")
)

// Format replaces every {N} in tmpl with fmt.Sprint(args[N]).
// Literal braces are written as {{ and }}.
func Format(tmpl string, args ...any) (string, error) {
	if !validTemplate.MatchString(tmpl) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, tmpl)
	}

	var b strings.Builder
	for _, m := range templatePart.FindAllStringSubmatch(tmpl, -1) {
		if m[1] != "" {
			b.WriteString(braceEscape.Replace(m[1]))
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil || idx >= len(args) {
			return "", fmt.Errorf("%w: {%s} with %d args", ErrArgIndex, m[2], len(args))
		}
		b.WriteString(fmt.Sprint(args[idx]))
	}
	return b.String(), nil
}

// Sprintf is Format for diagnostics: a bad template is reported inline instead of failing.
func Sprintf(tmpl string, args ...any) string {
	s, err := Format(tmpl, args...)
	if err != nil {
		return fmt.Sprintf("%s %v", err.Error(), args)
	}
	return s
}
