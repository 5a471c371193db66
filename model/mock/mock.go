// Package mock provides a deterministic ChatModel for tests, adapted from
// the teacher's graph/model.MockChatModel.
package mock

import (
	"context"
	"sync"

	"github.com/dshills/rlm-engine/model"
)

// ChatModel returns a configured sequence of responses, repeating the
// last one once exhausted, and records every call it receives.
type ChatModel struct {
	Responses []model.ChatOut
	Err       error
	Calls     []Call

	mu        sync.Mutex
	callIndex int
}

// Call records one invocation of Chat.
type Call struct {
	Messages []model.Message
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, Call{Messages: messages})

	if m.Err != nil {
		return model.ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return model.ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears call history and rewinds the response cursor.
func (m *ChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount reports how many times Chat has been invoked.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
