package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dreadlabs/dread-engine/pkg/chat"
)

const (
	veniceBaseURL = "https://api.venice.ai/api/v1"
	msgNoResponse = "(no response)"

	DefaultVeniceTemperature = 0.7
	DefaultVeniceMaxTokens   = 512

	DefaultVeniceImageModel = "fluently-xl"
	veniceImageSize         = 768
)

// VeniceService implements LLMService and ImageService for Venice AI.
type VeniceService struct {
	apiKey     string
	modelName  string
	imageModel string
	baseURL    string
	httpClient *http.Client
}

type VeniceParameters struct {
	IncludeVeniceSystemPrompt bool   `json:"include_venice_system_prompt"`
	EnableWebSearch           string `json:"enable_web_search"`
}

// VeniceChatRequest represents the request structure for Venice AI chat completions.
type VeniceChatRequest struct {
	Model            string           `json:"model"`
	Messages         []chat.Message   `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
	Stream           bool             `json:"stream"`
	VeniceParameters VeniceParameters `json:"venice_parameters"`
}

type VeniceChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type VeniceChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []VeniceChatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// VeniceImageRequest represents the request structure for Venice AI image generation.
type VeniceImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type VeniceImageResponse struct {
	Images []string `json:"images"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var (
	_ LLMService   = (*VeniceService)(nil)
	_ ImageService = (*VeniceService)(nil)
)

// NewVeniceService creates a new Venice AI service.
func NewVeniceService(apiKey string, modelName string, imageModel string) *VeniceService {
	if imageModel == "" {
		imageModel = DefaultVeniceImageModel
	}
	return &VeniceService{
		apiKey:     apiKey,
		modelName:  modelName,
		imageModel: imageModel,
		baseURL:    veniceBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// InitModel initializes the model (Venice AI doesn't require explicit model initialization).
func (v *VeniceService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

func (v *VeniceService) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", v.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Chat generates a chat response using Venice AI. Images attached to
// messages are dropped; Venice chat is text-only here.
func (v *VeniceService) Chat(ctx context.Context, messages []chat.Message) (*chat.Response, error) {
	veniceReq := VeniceChatRequest{
		Model:       v.modelName,
		Messages:    messages,
		Temperature: DefaultVeniceTemperature,
		MaxTokens:   DefaultVeniceMaxTokens,
		Stream:      false,
		VeniceParameters: VeniceParameters{
			IncludeVeniceSystemPrompt: false,
			EnableWebSearch:           "off",
		},
	}

	body, err := v.post(ctx, "/chat/completions", veniceReq)
	if err != nil {
		return nil, err
	}

	var veniceResp VeniceChatResponse
	if err := json.Unmarshal(body, &veniceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if veniceResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", veniceResp.Error.Message)
	}

	if len(veniceResp.Choices) == 0 {
		return &chat.Response{Message: msgNoResponse, Model: v.modelName}, nil
	}

	return &chat.Response{
		Message: veniceResp.Choices[0].Message.Content,
		Model:   v.modelName,
	}, nil
}

// GenerateImage generates a PNG scene illustration for the caption.
func (v *VeniceService) GenerateImage(ctx context.Context, caption string) ([]byte, error) {
	imageReq := VeniceImageRequest{
		Model:  v.imageModel,
		Prompt: caption,
		Width:  veniceImageSize,
		Height: veniceImageSize,
		Format: "png",
	}

	body, err := v.post(ctx, "/image/generate", imageReq)
	if err != nil {
		return nil, err
	}

	var imageResp VeniceImageResponse
	if err := json.Unmarshal(body, &imageResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if imageResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", imageResp.Error.Message)
	}
	if len(imageResp.Images) == 0 {
		return nil, fmt.Errorf("image generation returned no images")
	}

	data, err := base64.StdEncoding.DecodeString(imageResp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return data, nil
}
