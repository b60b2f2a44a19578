package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/Iron-Ham/dataimport/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "viewport.height")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels, lower-cased
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	for i, l := range levels {
		levels[i] = strings.ToLower(l)
	}
	return levels
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"json", "text"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateResolve()...)
	errors = append(errors, c.validateViewport()...)
	errors = append(errors, c.validateEager()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateResolve validates the ResolveConfig
func (c *Config) validateResolve() []ValidationError {
	var errors []ValidationError

	names := make([]string, 0, len(c.Resolve.Aliases))
	for name := range c.Resolve.Aliases {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		prefix := c.Resolve.Aliases[name]
		if name == "" || strings.ContainsAny(name, "%/") {
			errors = append(errors, ValidationError{
				Field:   "resolve.aliases",
				Value:   name,
				Message: "alias name must be non-empty and contain no '%' or '/'",
			})
		}
		if prefix == "" {
			errors = append(errors, ValidationError{
				Field:   "resolve.aliases." + name,
				Value:   prefix,
				Message: "alias prefix must not be empty",
			})
		}
	}

	if c.Resolve.Location != "" {
		if _, err := url.Parse(c.Resolve.Location); err != nil {
			errors = append(errors, ValidationError{
				Field:   "resolve.location",
				Value:   c.Resolve.Location,
				Message: "must be a valid URL",
			})
		}
	}

	return errors
}

// validateViewport validates the ViewportConfig
func (c *Config) validateViewport() []ValidationError {
	var errors []ValidationError

	const maxHeight = 100000
	if c.Viewport.Height <= 0 || c.Viewport.Height > maxHeight {
		errors = append(errors, ValidationError{
			Field:   "viewport.height",
			Value:   c.Viewport.Height,
			Message: fmt.Sprintf("must be between 1 and %d", maxHeight),
		})
	}

	if c.Viewport.ScrollStep <= 0 {
		errors = append(errors, ValidationError{
			Field:   "viewport.scroll_step",
			Value:   c.Viewport.ScrollStep,
			Message: "must be positive",
		})
	}

	return errors
}

// validateEager validates the EagerConfig
func (c *Config) validateEager() []ValidationError {
	var errors []ValidationError

	if c.Eager.MaxConcurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "eager.max_concurrency",
			Value:   c.Eager.MaxConcurrency,
			Message: "must be non-negative (0 means unlimited)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}
