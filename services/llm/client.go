// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm wraps langchaingo model access for summarization and
// search embeddings.
//
// Every outbound call passes the send guard (prompt byte cap + rate
// limiter) and is recorded in the call metrics. API keys live in
// memguard enclaves and are only materialized for the moment a client
// is constructed; anything logged goes through SafeLogString first.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Provider names accepted by NewClient.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	// ProviderLocal is an OpenAI-compatible server (llama.cpp, vLLM,
	// Ollama's compat endpoint). Requires an endpoint; the key is
	// optional.
	ProviderLocal = "local"
)

// ErrUnknownProvider is returned for a provider name NewClient does
// not recognize.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Client is the minimal surface the summarizer and search need.
type Client interface {
	// Generate produces a completion for one prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Model returns the configured model identifier, for logging.
	Model() string
}

// Options configures a client.
type Options struct {
	// Provider is one of the Provider* constants.
	Provider string

	// Model is the model identifier. Empty uses the provider default.
	Model string

	// Endpoint overrides the provider base URL. Required for
	// ProviderLocal.
	Endpoint string

	// Key holds the API key, or nil when the endpoint needs none.
	Key *Key

	// MaxPromptBytes and RequestsPerMinute configure the send guard.
	// Zero disables the respective limit.
	MaxPromptBytes    int
	RequestsPerMinute int

	// MaxTokens caps the completion length. Zero uses the default.
	MaxTokens int

	Logger *slog.Logger
}

const defaultMaxTokens = 1024

// client adapts a langchaingo model behind the send guard.
type client struct {
	model     llms.Model
	modelName string
	guard     *SendGuard
	maxTokens int
	logger    *slog.Logger
}

// NewClient builds a guarded client for the configured provider.
//
// Description:
//
//	Constructs the langchaingo model for the provider, materializing
//	the API key from its enclave only for the construction call. The
//	returned client enforces the prompt cap and rate limit on every
//	Generate.
//
// Outputs:
//   - Client: Ready for concurrent use.
//   - error: ErrUnknownProvider, a missing endpoint for a local
//     provider, or a provider construction failure.
func NewClient(opts Options) (Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	model, name, err := buildModel(opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("LLM client ready",
		slog.String("provider", opts.Provider),
		slog.String("model", name),
		slog.String("endpoint", SafeLogString(opts.Endpoint)))

	return &client{
		model:     model,
		modelName: name,
		guard:     NewSendGuard(opts.MaxPromptBytes, opts.RequestsPerMinute),
		maxTokens: maxTokens,
		logger:    opts.Logger,
	}, nil
}

func buildModel(opts Options) (llms.Model, string, error) {
	token := ""
	if opts.Key != nil {
		var err error
		token, err = opts.Key.Reveal()
		if err != nil {
			return nil, "", fmt.Errorf("open api key enclave: %w", err)
		}
	}

	switch opts.Provider {
	case ProviderAnthropic:
		name := opts.Model
		if name == "" {
			name = "claude-3-5-haiku-latest"
		}
		aOpts := []anthropic.Option{anthropic.WithModel(name)}
		if token != "" {
			aOpts = append(aOpts, anthropic.WithToken(token))
		}
		if opts.Endpoint != "" {
			aOpts = append(aOpts, anthropic.WithBaseURL(opts.Endpoint))
		}
		m, err := anthropic.New(aOpts...)
		if err != nil {
			return nil, "", fmt.Errorf("create anthropic model: %w", err)
		}
		return m, name, nil

	case ProviderOpenAI, ProviderLocal:
		name := opts.Model
		if name == "" {
			name = "gpt-4o-mini"
		}
		oOpts := []openai.Option{openai.WithModel(name)}
		if token != "" {
			oOpts = append(oOpts, openai.WithToken(token))
		}
		if opts.Endpoint != "" {
			oOpts = append(oOpts, openai.WithBaseURL(opts.Endpoint))
		} else if opts.Provider == ProviderLocal {
			return nil, "", fmt.Errorf("local provider requires an endpoint")
		}
		if opts.Provider == ProviderLocal && token == "" {
			// langchaingo's openai client insists on a token even for
			// local servers that ignore it.
			oOpts = append(oOpts, openai.WithToken("unused"))
		}
		m, err := openai.New(oOpts...)
		if err != nil {
			return nil, "", fmt.Errorf("create openai-compatible model: %w", err)
		}
		return m, name, nil

	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}
}

// Generate runs one guarded completion call.
func (c *client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.guard.Check(ctx, prompt); err != nil {
		recordCall(c.modelName, "rejected", 0, 0)
		return "", err
	}

	ctx, span := llmTracer.Start(ctx, "llm.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", c.modelName),
		attribute.Int("prompt_bytes", len(prompt)),
	)

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithMaxTokens(c.maxTokens))
	elapsed := time.Since(start)

	if err != nil {
		span.SetStatus(codes.Error, "generate failed")
		recordCall(c.modelName, "error", elapsed, 0)
		c.logger.Warn("LLM call failed",
			slog.String("model", c.modelName),
			slog.String("error", SafeLogString(err.Error())))
		return "", fmt.Errorf("llm generate: %w", err)
	}

	out = strings.TrimSpace(out)
	recordCall(c.modelName, "ok", elapsed, len(out))
	span.SetAttributes(attribute.Int("completion_bytes", len(out)))
	return out, nil
}

// Model returns the configured model identifier.
func (c *client) Model() string {
	return c.modelName
}
