// Package security provides validation, sanitization, and limits for the jobs package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxAPINameLength is the maximum length for endpoint api names
	MaxAPINameLength = 255

	// MaxPayloadSize is the maximum size in bytes for serialized job arguments (16MB)
	MaxPayloadSize = 16 << 20

	// MaxRetries is the hard limit for submission retry attempts
	MaxRetries = 100

	// MaxWorkers is the hard limit for client worker pool size
	MaxWorkers = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxSessionHashLength is the maximum length for session hashes
	MaxSessionHashLength = 64

	// MaxEventLineSize is the largest single event line accepted off a stream (8MB)
	MaxEventLineSize = 8 << 20
)

// validAPIName matches an optional leading slash followed by alphanumerics,
// hyphens, underscores, and dots
var validAPIName = regexp.MustCompile(`^/?[a-zA-Z_][a-zA-Z0-9_\-\.]*$`)

var validSessionHash = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// ValidateAPIName validates an endpoint api name such as "/predict"
func ValidateAPIName(name string) error {
	if name == "" {
		return core.ErrInvalidAPIName
	}
	if len(name) > MaxAPINameLength {
		return core.ErrAPINameTooLong
	}
	if !validAPIName.MatchString(name) {
		return core.ErrInvalidAPIName
	}
	return nil
}

// NormalizeAPIName returns the name with exactly one leading slash
func NormalizeAPIName(name string) string {
	return "/" + strings.TrimLeft(name, "/")
}

// ValidateSessionHash validates a session hash
func ValidateSessionHash(hash string) error {
	if hash == "" || len(hash) > MaxSessionHashLength {
		return core.ErrInvalidSessionHash
	}
	if !validSessionHash.MatchString(hash) {
		return core.ErrInvalidSessionHash
	}
	return nil
}

// ValidatePayloadSize rejects serialized arguments over MaxPayloadSize
func ValidatePayloadSize(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return core.ErrPayloadTooLarge
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampWorkers ensures the worker pool size is within limits
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
