package feedback

import (
	"strings"
)

// Severity of a classified error.
const (
	SeverityCritical = "critical"
	SeverityMinor    = "minor"
	SeverityWarning  = "warning"
)

// ClassPattern maps message substrings to an error class.
type ClassPattern struct {
	Class    string
	Patterns []string
	Severity string
}

// Built-in error classes, checked in order. First substring hit wins.
var defaultClassPatterns = []ClassPattern{
	{Class: "syntax_error", Patterns: []string{"syntaxerror", "syntax error", "unexpected token", "parse error"}, Severity: SeverityCritical},
	{Class: "import_error", Patterns: []string{"importerror", "modulenotfounderror", "undefined name", "not found"}, Severity: SeverityCritical},
	{Class: "type_error", Patterns: []string{"typeerror", "type mismatch", "incompatible type", "expected type"}, Severity: SeverityCritical},
	{Class: "missing_semicolon", Patterns: []string{"missing semicolon", "expected ';'", "expected semicolon"}, Severity: SeverityMinor},
	{Class: "brace_mismatch", Patterns: []string{"unbalanced", "unexpected }", "expected }", "unmatched"}, Severity: SeverityCritical},
	{Class: "naming_error", Patterns: []string{"naming convention", "invalid identifier", "expected identifier"}, Severity: SeverityMinor},
	{Class: "lint_warning", Patterns: []string{"trailing whitespace", "unused import", "imported but unused", "unused variable"}, Severity: SeverityWarning},
	{Class: "test_failure", Patterns: []string{"assertionerror", "test failed", "assert", "expected"}, Severity: SeverityCritical},
	{Class: "compilation_error", Patterns: []string{"error:", "fatal error", "cannot compile", "compilation failed"}, Severity: SeverityCritical},
}

// Diagnosis is the structured classification of a failure.
type Diagnosis struct {
	ErrorClass     string
	Severity       string
	PrimaryMessage string
	Language       string
	AllMessages    []string
}

// ErrorClassifier classifies error messages into known classes by substring
// matching against a pattern table.
type ErrorClassifier struct {
	patterns []ClassPattern
}

// NewErrorClassifier creates a classifier with the built-in pattern table
// plus any custom patterns, which are consulted after the built-ins.
func NewErrorClassifier(custom ...ClassPattern) *ErrorClassifier {
	patterns := make([]ClassPattern, 0, len(defaultClassPatterns)+len(custom))
	patterns = append(patterns, defaultClassPatterns...)
	patterns = append(patterns, custom...)
	return &ErrorClassifier{patterns: patterns}
}

// Classify maps error messages to an error class. Only the first message is
// matched; unknown messages classify as "unknown" with critical severity.
func (c *ErrorClassifier) Classify(language string, errs []string) Diagnosis {
	primary := "unknown error"
	if len(errs) > 0 {
		primary = errs[0]
	}
	primaryLower := strings.ToLower(primary)

	for _, info := range c.patterns {
		for _, pattern := range info.Patterns {
			if strings.Contains(primaryLower, pattern) {
				return Diagnosis{
					ErrorClass:     info.Class,
					Severity:       info.Severity,
					PrimaryMessage: primary,
					Language:       language,
					AllMessages:    errs,
				}
			}
		}
	}

	return Diagnosis{
		ErrorClass:     "unknown",
		Severity:       SeverityCritical,
		PrimaryMessage: primary,
		Language:       language,
		AllMessages:    errs,
	}
}
