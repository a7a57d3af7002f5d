// Package errors provides secure error handling utilities that prevent information disclosure.
package errors

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Pattern to match file paths (Linux and Windows)
	filePathPattern = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+)|([A-Z]:\\[a-zA-Z0-9_\-\\ ./]+)`)

	// Pattern to match IP addresses
	ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// Pattern to match common internal error details
	internalErrorPattern = regexp.MustCompile(`(?i)(sql:|clickhouse:|database:|connection string|password=|secret=|token=|api[_-]?key=)`)
)

// ProductionMode determines whether to use sanitized errors.
// Set to true in production deployments.
var ProductionMode = false

// SetProductionMode sets the production mode flag.
// Should be called during application initialization.
func SetProductionMode(production bool) {
	ProductionMode = production
}

// SanitizeString removes sensitive information from a string.
func SanitizeString(s string) string {
	if !ProductionMode {
		return s
	}

	// Remove absolute file paths, keep only filename
	s = filePathPattern.ReplaceAllStringFunc(s, func(match string) string {
		return filepath.Base(match)
	})

	// Mask IP addresses (keep first two octets for debugging context)
	s = ipPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.Split(match, ".")
		if len(parts) == 4 {
			return fmt.Sprintf("%s.%s.x.x", parts[0], parts[1])
		}
		return "x.x.x.x"
	})

	// Remove storage-related details
	if internalErrorPattern.MatchString(s) {
		s = "storage operation failed"
	}

	// Replace long stack traces with generic message
	if strings.Contains(s, "goroutine") || strings.Count(s, "\n") > 3 {
		s = "internal server error - operation failed"
	}

	return s
}

// SafeErrorMessage returns a user-safe error message.
// Internal errors get generic messages, user errors pass through.
func SafeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	// Known user-facing errors can pass through
	userFacingErrors := []string{
		"missing required field",
		"invalid request",
		"invalid JSON",
		"payload too large",
		"queue full",
		"unauthorized",
		"forbidden",
		"not found",
	}

	lowerMsg := strings.ToLower(msg)
	for _, safe := range userFacingErrors {
		if strings.Contains(lowerMsg, strings.ToLower(safe)) {
			return msg
		}
	}

	return SanitizeString(msg)
}
