package services

import (
	"context"

	"github.com/dreadlabs/dread-engine/pkg/chat"
)

// LLMService defines the interface for interacting with a chat-completion API.
type LLMService interface {
	// InitModel initializes the model on startup. Providers that need no
	// explicit initialization return nil.
	InitModel(ctx context.Context, modelName string) error

	// Chat generates a chat response for the given message sequence.
	// Messages carrying Images are sent as multimodal content when the
	// provider supports it, and as text otherwise.
	Chat(ctx context.Context, messages []chat.Message) (*chat.Response, error)
}

// ImageService generates scene illustrations from captions.
type ImageService interface {
	// GenerateImage returns encoded PNG bytes for the given caption.
	GenerateImage(ctx context.Context, caption string) ([]byte, error)
}
