// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrPromptTooLarge is returned when a prompt exceeds the byte cap.
var ErrPromptTooLarge = errors.New("prompt exceeds maximum size")

// SendGuard enforces the outbound call policy: a hard cap on prompt
// bytes and a token-bucket rate limit.
//
// Thread Safety: safe for concurrent use.
type SendGuard struct {
	maxPromptBytes int
	limiter        *rate.Limiter
}

// NewSendGuard builds a guard. Zero for either limit disables it.
func NewSendGuard(maxPromptBytes, requestsPerMinute int) *SendGuard {
	g := &SendGuard{maxPromptBytes: maxPromptBytes}
	if requestsPerMinute > 0 {
		// Burst of one: summarization traffic is steady, not spiky.
		g.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return g
}

// Check validates one prompt and blocks until the rate limit admits it.
//
// Outputs:
//   - error: ErrPromptTooLarge for an oversized prompt, or the
//     context's error if cancelled while waiting on the limiter.
func (g *SendGuard) Check(ctx context.Context, prompt string) error {
	if g.maxPromptBytes > 0 && len(prompt) > g.maxPromptBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrPromptTooLarge, len(prompt), g.maxPromptBytes)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return nil
}
