package parser

import "regexp"

// RedactedEndpoint replaces connection endpoint pairs so that errors which
// only differ by peer address collapse into one message.
const RedactedEndpoint = "[IP_REDACTED]"

var endpointPairRegex = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+:\d+->\d+\.\d+\.\d+\.\d+:\d+`)

// Normalize strips variable "ip:port->ip:port" substrings from line.
func Normalize(line string) string {
	return endpointPairRegex.ReplaceAllLiteralString(line, RedactedEndpoint)
}
