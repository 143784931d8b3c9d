package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultParsers returns the built-in parsers in match order.
func DefaultParsers() []Parser {
	return []Parser{PatternParser{}, LiteralParser{}}
}

// LiteralParser handles "from => to" lines.
type LiteralParser struct{}

func (LiteralParser) Accepts(line string) bool {
	return strings.Contains(line, "=>")
}

func (LiteralParser) Compile(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	expr := regexp.QuoteMeta(from)
	if isWordByte(from[0]) {
		expr = `\b` + expr
	}
	if isWordByte(from[len(from)-1]) {
		expr += `\b`
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literal{re: re, replacement: to}, nil
}

type literal struct {
	re          *regexp.Regexp
	replacement string
}

func (r literal) Rewrite(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

// PatternParser handles sed-style "s/pattern/replacement/flags" lines.
type PatternParser struct{}

func (PatternParser) Accepts(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}

func (PatternParser) Compile(line string) (Rule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid pattern rule")
	}
	delim := line[1]

	expr, next, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, next, err := readDelimited(line, next, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	// Patterns are case-insensitive unless stated otherwise; there is no flag to turn that off.
	prefix := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[next:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(prefix, flag) {
				prefix += string(flag)
			}
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported pattern flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + prefix + ")" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return pattern{re: re, replacement: replacement, global: global}, nil
}

type pattern struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func (r pattern) Rewrite(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	var expanded []byte
	expanded = r.re.ExpandString(expanded, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		default:
			builder.WriteByte(char)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}
