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
	"log/slog"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel is an in-process llms.Model that echoes the prompt.
type fakeModel struct {
	reply string
	err   error
	calls int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newFakeClient(model *fakeModel, maxPromptBytes int) *client {
	return &client{
		model:     model,
		modelName: "fake-model",
		guard:     NewSendGuard(maxPromptBytes, 0),
		maxTokens: 64,
		logger:    slog.Default(),
	}
}

func TestClient_Generate(t *testing.T) {
	fake := &fakeModel{reply: "  a summary  \n"}
	c := newFakeClient(fake, 0)

	out, err := c.Generate(context.Background(), "summarize foo")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "a summary" {
		t.Errorf("Generate = %q, want trimmed reply", out)
	}
	if fake.calls != 1 {
		t.Errorf("model called %d times, want 1", fake.calls)
	}
}

func TestClient_GenerateRejectsOversizedPrompt(t *testing.T) {
	fake := &fakeModel{reply: "ignored"}
	c := newFakeClient(fake, 8)

	_, err := c.Generate(context.Background(), strings.Repeat("x", 9))
	if !errors.Is(err, ErrPromptTooLarge) {
		t.Errorf("error = %v, want ErrPromptTooLarge", err)
	}
	if fake.calls != 0 {
		t.Error("guard rejection must not reach the model")
	}
}

func TestClient_GeneratePropagatesModelError(t *testing.T) {
	fake := &fakeModel{err: errors.New("upstream 500")}
	c := newFakeClient(fake, 0)
	if _, err := c.Generate(context.Background(), "p"); err == nil {
		t.Error("model failure must surface as an error")
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(Options{Provider: "telegraph"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("error = %v, want ErrUnknownProvider", err)
	}
}

func TestNewClient_LocalRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Options{Provider: ProviderLocal}); err == nil {
		t.Error("local provider without endpoint must fail")
	}
}
