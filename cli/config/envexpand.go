// Package config loads magnetmeta.yaml, the optional defaults file for the
// fetch and scrape commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches $${...} (escaped, kept literally minus one $) and
// ${NAME}, ${NAME:-default} or ${NAME:?message}.
var envRef = regexp.MustCompile(`\$\$\{[^}]*\}|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
//
//	${NAME}            value of NAME, empty when unset
//	${NAME:-default}   value of NAME, or default when unset or empty
//	${NAME:?message}   value of NAME, or an error carrying message
//	$${NAME}           the literal text ${NAME}
//
// Every missing required variable is reported, not just the first.
func ExpandEnv(input string) (string, error) {
	var (
		b       strings.Builder
		missing []error
		last    int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		ref := input[m[0]:m[1]]
		if strings.HasPrefix(ref, "$$") {
			b.WriteString(ref[1:])
			continue
		}

		name := input[m[2]:m[3]]
		var op, arg string
		if m[4] >= 0 {
			op, arg = input[m[4]:m[5]], input[m[6]:m[7]]
		}

		value := os.Getenv(name)
		switch {
		case value != "":
			b.WriteString(value)
		case op == ":-":
			b.WriteString(arg)
		case op == ":?":
			if arg == "" {
				arg = "is required"
			}
			missing = append(missing, fmt.Errorf("${%s}: %s", name, arg))
		}
	}
	b.WriteString(input[last:])

	if len(missing) > 0 {
		return "", errors.Join(missing...)
	}
	return b.String(), nil
}
