// Package rules rewrites user-typed chat text before it is sent to the backend.
//
// A rules source holds one rule per line. Blank lines and lines starting with '#'
// are ignored. Two forms are understood:
//
//	brb => be right back          literal, case-insensitive, whole words only
//	s/\bk8s\b/Kubernetes/g        sed-style pattern with flags i, g, m, s
//
// Rules are applied in order, repeatedly, until the text stops changing or the
// pass limit is reached.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const defaultPassLimit = 30

// Rule rewrites text and reports whether anything changed.
type Rule interface {
	Rewrite(input string) (output string, changed bool)
}

// Parser compiles one source line into a Rule.
type Parser interface {
	Accepts(line string) bool
	Compile(line string) (Rule, error)
}

// Engine applies compiled rules.
type Engine struct {
	rules     []Rule
	passLimit int
}

// Load reads rules from path (optional) followed by inline lines.
// A missing file is treated as empty.
func Load(path string, inline []string, passLimit int) (*Engine, error) {
	var lines []string
	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		switch {
		case err == nil:
			lines = append(lines, strings.Split(string(contents), "\n")...)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		}
	}

	engine, err := Compile(append(lines, inline...), passLimit, DefaultParsers()...)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("rules %q: %w", path, err)
		}
		return nil, err
	}
	return engine, nil
}

// Compile builds an Engine from source lines. With no parsers the defaults are used.
func Compile(lines []string, passLimit int, parsers ...Parser) (*Engine, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	compiled := make([]Rule, 0, len(lines))
	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := compileLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		compiled = append(compiled, rule)
	}

	return &Engine{rules: compiled, passLimit: passLimit}, nil
}

func compileLine(line string, parsers []Parser) (Rule, error) {
	for _, parser := range parsers {
		if parser.Accepts(line) {
			return parser.Compile(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply rewrites text until it is stable or the pass limit is hit.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	current := text
	for pass := 0; pass < e.passLimit; pass++ {
		changed := false
		for _, rule := range e.rules {
			if next, ok := rule.Rewrite(current); ok {
				current = next
				changed = true
			}
		}
		if !changed {
			return current, nil
		}
	}
	return current, nil
}
