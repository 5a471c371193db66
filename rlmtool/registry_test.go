package rlmtool

import (
	"testing"

	"github.com/dshills/rlm-engine/model"
	"github.com/dshills/rlm-engine/model/mock"
)

func TestEnvRegistryResolveEmptyReturnsDefault(t *testing.T) {
	def := &mock.ChatModel{}
	r := NewEnvRegistry(def)

	got, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != model.ChatModel(def) {
		t.Error("expected the configured default model")
	}
}

func TestEnvRegistryResolveEmptyDefaultErrorsWithoutDefault(t *testing.T) {
	r := NewEnvRegistry(nil)
	if _, err := r.Resolve(""); err == nil {
		t.Fatal("expected an error when no default model is configured")
	}
}

func TestEnvRegistryResolveMissingPrefixErrors(t *testing.T) {
	r := NewEnvRegistry(&mock.ChatModel{})
	if _, err := r.Resolve("claude-sonnet"); err == nil {
		t.Fatal("expected an error for a model id with no provider prefix")
	}
}

func TestEnvRegistryResolveUnknownProviderErrors(t *testing.T) {
	r := NewEnvRegistry(&mock.ChatModel{})
	if _, err := r.Resolve("cohere:command"); err == nil {
		t.Fatal("expected an error for an unrecognized provider")
	}
}

func TestEnvRegistryResolveMissingAPIKeyErrors(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	r := NewEnvRegistry(&mock.ChatModel{})
	if _, err := r.Resolve("anthropic:claude-sonnet-4-5"); err == nil {
		t.Fatal("expected an error when ANTHROPIC_API_KEY is unset")
	}
}

func TestEnvRegistryResolveCachesByModelID(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	r := NewEnvRegistry(&mock.ChatModel{})

	first, err := r.Resolve("anthropic:claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve("anthropic:claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Error("expected the same cached ChatModel instance on repeated resolution")
	}
}
