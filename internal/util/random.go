// Package util provides utility functions for the ChartFlow application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2 for non-cryptographic ID generation.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateWorkflowID generates a unique workflow ID with "wf_" prefix.
func GenerateWorkflowID() string {
	return GenerateRandomID("wf_", 16)
}

// GenerateConversationID generates a unique conversation ID with "conv_" prefix.
func GenerateConversationID() string {
	return GenerateRandomID("conv_", 16)
}

// GenerateRecordID generates a unique record ID with the given kind prefix,
// e.g. GenerateRecordID("note") -> "note_a1b2...".
func GenerateRecordID(kind string) string {
	return GenerateRandomID(kind+"_", 16)
}
