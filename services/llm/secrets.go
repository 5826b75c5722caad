// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// Environment variables probed for API keys, most specific first.
var keyEnvVars = map[string][]string{
	ProviderOpenAI:    {"CODEBUDDY_LLM_API_KEY", "OPENAI_API_KEY"},
	ProviderAnthropic: {"CODEBUDDY_LLM_API_KEY", "ANTHROPIC_API_KEY"},
	ProviderLocal:     {"CODEBUDDY_LLM_API_KEY"},
}

// ErrNoAPIKey is returned when no key variable is set for a provider
// that needs one.
var ErrNoAPIKey = errors.New("no api key in environment")

// Key holds an API key sealed in a memguard enclave.
//
// The plaintext exists only inside Reveal, which decrypts into a
// locked buffer, copies the value out, and wipes the buffer. The key
// never appears in logs; log call sites must pass any string that
// could contain it through SafeLogString.
type Key struct {
	enclave *memguard.Enclave
}

// NewKey seals a key, wiping the caller's copy.
func NewKey(value []byte) *Key {
	// memguard takes ownership of the slice and zeroes it.
	return &Key{enclave: memguard.NewEnclave(value)}
}

// KeyFromEnv seals the first non-empty key variable for a provider and
// scrubs the variable from the process environment.
//
// Outputs:
//   - *Key: The sealed key.
//   - error: ErrNoAPIKey when no variable is set. Local providers
//     commonly need no key; callers treat that case as optional.
func KeyFromEnv(provider string) (*Key, error) {
	for _, name := range keyEnvVars[provider] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			os.Unsetenv(name)
			return NewKey([]byte(v)), nil
		}
	}
	return nil, fmt.Errorf("%w: provider %q", ErrNoAPIKey, provider)
}

// Reveal decrypts the key for immediate use.
//
// The caller must not retain the returned string beyond the
// construction call that needs it.
func (k *Key) Reveal() (string, error) {
	if k == nil || k.enclave == nil {
		return "", nil
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	// Copy out: the locked buffer's own memory is wiped on Destroy.
	return string(buf.Bytes()), nil
}
