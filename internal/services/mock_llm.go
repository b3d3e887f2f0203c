package services

import (
	"context"
	"sync"

	"github.com/dreadlabs/dread-engine/pkg/chat"
)

// MockLLM is a mock implementation of LLMService for testing.
type MockLLM struct {
	InitModelFunc func(ctx context.Context, modelName string) error
	ChatFunc      func(ctx context.Context, messages []chat.Message) (*chat.Response, error)

	// Track calls for testing
	InitModelCalls []string
	ChatCalls      []ChatCall

	mu sync.Mutex // protects all fields above
}

type ChatCall struct {
	Messages []chat.Message
}

var _ LLMService = (*MockLLM)(nil)

// NewMockLLM creates a new mock LLM service.
func NewMockLLM() *MockLLM {
	return &MockLLM{
		InitModelCalls: make([]string, 0),
		ChatCalls:      make([]ChatCall, 0),
	}
}

func (m *MockLLM) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InitModelCalls = append(m.InitModelCalls, modelName)

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}
	return nil
}

func (m *MockLLM) Chat(ctx context.Context, messages []chat.Message) (*chat.Response, error) {
	m.mu.Lock()
	fn := m.ChatFunc
	m.ChatCalls = append(m.ChatCalls, ChatCall{Messages: messages})
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return &chat.Response{Message: "Mock response"}, nil
}

// SetChatError sets up the mock to return an error on Chat.
func (m *MockLLM) SetChatError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFunc = func(ctx context.Context, messages []chat.Message) (*chat.Response, error) {
		return nil, err
	}
}

// SetChatResponses sets up the mock to return the given responses in order,
// repeating the last one once exhausted.
func (m *MockLLM) SetChatResponses(responses ...string) {
	var idx int
	var seqMu sync.Mutex
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFunc = func(ctx context.Context, messages []chat.Message) (*chat.Response, error) {
		seqMu.Lock()
		defer seqMu.Unlock()
		i := idx
		if i >= len(responses) {
			i = len(responses) - 1
		}
		idx++
		return &chat.Response{Message: responses[i]}, nil
	}
}

// Reset clears all call tracking.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = make([]string, 0)
	m.ChatCalls = make([]ChatCall, 0)
}

// GetCalls returns a copy of the call tracking data in a thread-safe way.
func (m *MockLLM) GetCalls() ([]string, []ChatCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	initCalls := make([]string, len(m.InitModelCalls))
	copy(initCalls, m.InitModelCalls)

	chatCalls := make([]ChatCall, len(m.ChatCalls))
	copy(chatCalls, m.ChatCalls)

	return initCalls, chatCalls
}

// MockImageService is a mock implementation of ImageService for testing.
type MockImageService struct {
	GenerateImageFunc func(ctx context.Context, caption string) ([]byte, error)

	mu            sync.Mutex
	GenerateCalls []string
}

var _ ImageService = (*MockImageService)(nil)

func (m *MockImageService) GenerateImage(ctx context.Context, caption string) ([]byte, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, caption)
	fn := m.GenerateImageFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, caption)
	}
	return []byte{0x89, 0x50, 0x4e, 0x47}, nil
}
