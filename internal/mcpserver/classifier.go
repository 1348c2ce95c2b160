package mcpserver

import "strings"

// DefaultFatalPatterns are matched case-insensitively against stderr while a
// server is starting.
var DefaultFatalPatterns = []string{"error", "cannot find module", "404", "enoent"}

// Classifier decides whether a diagnostic line signals a failed start.
type Classifier interface {
	IsFatal(line string) bool
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(line string) bool

func (f ClassifierFunc) IsFatal(line string) bool { return f(line) }

// PatternClassifier matches any of its substrings, ignoring case.
type PatternClassifier struct {
	patterns []string
}

// NewPatternClassifier lowercases patterns once up front.
func NewPatternClassifier(patterns ...string) PatternClassifier {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return PatternClassifier{patterns: lowered}
}

// DefaultClassifier returns a PatternClassifier over DefaultFatalPatterns.
func DefaultClassifier() PatternClassifier {
	return NewPatternClassifier(DefaultFatalPatterns...)
}

func (c PatternClassifier) IsFatal(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range c.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
