package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dreadlabs/dread-engine/pkg/chat"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiService implements LLMService using the Gemini API. It is the
// provider of choice when scene images should feed back into generation,
// since Gemini accepts inline image parts.
type GeminiService struct {
	client    *genai.Client
	modelName string
}

var _ LLMService = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, apiKey string, modelName string) (*GeminiService, error) {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiService{
		client:    client,
		modelName: modelName,
	}, nil
}

func (g *GeminiService) InitModel(ctx context.Context, modelName string) error {
	if modelName != "" {
		g.modelName = modelName
	}
	return nil
}

// Chat flattens the message sequence into a single multimodal prompt.
// System messages lead, then the conversation in order, with images
// attached as inline PNG parts.
func (g *GeminiService) Chat(ctx context.Context, messages []chat.Message) (*chat.Response, error) {
	model := g.client.GenerativeModel(g.modelName)

	var parts []genai.Part
	var text strings.Builder
	for _, msg := range messages {
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(msg.Content)
		for _, img := range msg.Images {
			parts = append(parts, genai.ImageData("png", img))
		}
	}
	parts = append(parts, genai.Text(text.String()))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &chat.Response{Message: msgNoResponse, Model: g.modelName}, nil
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out.WriteString(string(t))
		}
	}
	if out.Len() == 0 {
		return &chat.Response{Message: msgNoResponse, Model: g.modelName}, nil
	}

	return &chat.Response{
		Message: out.String(),
		Model:   g.modelName,
	}, nil
}

func (g *GeminiService) Close() error {
	return g.client.Close()
}
