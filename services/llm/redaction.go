// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "regexp"

// redactionPattern pairs a secret-matching regex with a labeled
// replacement so the log reader knows what class of secret was there.
type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionPatterns is ordered most-specific-first: the Anthropic
// prefix must be tried before the generic "sk-" OpenAI pattern or a
// key gets half-redacted.
var redactionPatterns = []redactionPattern{
	{
		pattern:     regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`),
		replacement: "[REDACTED:anthropic_key]",
	},
	{
		pattern:     regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		replacement: "[REDACTED:openai_key]",
	},
	{
		pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		replacement: "[REDACTED:bearer_token]",
	},
	// API key passed as a URL query parameter.
	{
		pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		replacement: "key=[REDACTED]",
	},
	{
		pattern:     regexp.MustCompile(`password=[^\s&]{3,}`),
		replacement: "password=[REDACTED]",
	},
	// Connection strings with inline credentials.
	{
		pattern:     regexp.MustCompile(`(postgres|mysql|mongodb)://[^\s]+@`),
		replacement: "${1}://[REDACTED]@",
	},
	// InfluxDB tokens passed as header or query values.
	{
		pattern:     regexp.MustCompile(`Token\s+[A-Za-z0-9_=-]{20,}`),
		replacement: "[REDACTED:influx_token]",
	},
}

// SafeLogString redacts known secret patterns from a string before it
// reaches a log line, an error message, or a span attribute.
//
// Detection is pattern-based: secrets in formats this list does not
// know about pass through. Call sites must still avoid logging raw
// request bodies.
//
// Thread Safety: safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}
