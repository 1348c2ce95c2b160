package config

import (
	"fmt"
	"regexp"
	"strings"
)

var serverIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError is a single problem with a server definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Validate checks a server definition before it is installed.
func (c ServerConfig) Validate() error {
	var errs ValidationErrors
	switch {
	case c.ID == "":
		errs = append(errs, ValidationError{Field: "id", Message: "is required"})
	case !serverIDPattern.MatchString(c.ID):
		errs = append(errs, ValidationError{Field: "id", Message: fmt.Sprintf("%q may only contain letters, digits, '-' and '_'", c.ID)})
	}
	if strings.TrimSpace(c.Command) == "" {
		errs = append(errs, ValidationError{Field: "command", Message: "is required"})
	}
	for k := range c.Env {
		if strings.TrimSpace(k) == "" || strings.Contains(k, "=") {
			errs = append(errs, ValidationError{Field: "env", Message: fmt.Sprintf("invalid variable name %q", k)})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
