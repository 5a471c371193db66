package google

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/rlm-engine/model"
)

func TestNewChatModelDefaultsModelName(t *testing.T) {
	m := NewChatModel("test-key", "")
	if m == nil || m.modelName != defaultModelName {
		t.Fatalf("expected default model name %q, got %+v", defaultModelName, m)
	}
}

func TestChatSendsMessagesAndReturnsResponse(t *testing.T) {
	mockClient := &mockGoogleClient{response: "Gemini response"}
	m := &ChatModel{client: mockClient, modelName: "gemini-2.5-flash"}

	out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "Hi"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != "Gemini response" {
		t.Errorf("unexpected text: %q", out.Text)
	}
}

func TestChatSurfacesSafetyFilterErrors(t *testing.T) {
	m := &ChatModel{client: &mockGoogleClient{err: &SafetyFilterError{Category: "HARM_CATEGORY_HATE_SPEECH"}}, modelName: "gemini-2.5-flash"}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "Test"}})
	var safetyErr *SafetyFilterError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyFilterError, got %v", err)
	}
	if safetyErr.Category != "HARM_CATEGORY_HATE_SPEECH" {
		t.Errorf("unexpected category: %q", safetyErr.Category)
	}
}

func TestChatRejectsEmptyAPIKey(t *testing.T) {
	m := NewChatModel("", "gemini-2.5-flash")
	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "Test"}})
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

type mockGoogleClient struct {
	response string
	err      error
}

func (m *mockGoogleClient) generateContent(_ context.Context, _ []model.Message) (model.ChatOut, error) {
	if m.err != nil {
		return model.ChatOut{}, m.err
	}
	return model.ChatOut{Text: m.response}, nil
}
