package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dreadlabs/dread-engine/pkg/chat"
)

func TestAnthropicService_Chat(t *testing.T) {
	var captured AnthropicChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "The shed door creaks open."}},
		})
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := NewAnthropicService("test-key", "claude-test", logger)
	svc.baseURL = server.URL

	resp, err := svc.Chat(context.Background(), []chat.Message{
		{Role: chat.RoleSystem, Content: "You are a narrator."},
		{Role: chat.RoleUser, Content: "Open the shed.", Images: [][]byte{{0x89, 0x50}}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "The shed door creaks open." {
		t.Errorf("Message = %q", resp.Message)
	}

	if captured.System != "You are a narrator." {
		t.Errorf("System = %q", captured.System)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(captured.Messages))
	}
	blocks := captured.Messages[0].Content
	if len(blocks) != 2 || blocks[0].Type != "image" || blocks[1].Type != "text" {
		t.Errorf("content blocks = %+v", blocks)
	}
	if blocks[0].Source == nil || blocks[0].Source.MediaType != "image/png" {
		t.Errorf("image source = %+v", blocks[0].Source)
	}
}

func TestAnthropicService_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := NewAnthropicService("k", "m", logger)
	svc.baseURL = server.URL

	_, err := svc.Chat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestVeniceService_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Static crackles from the radio."}}]}`))
	}))
	defer server.Close()

	svc := NewVeniceService("key", "venice-model", "")
	svc.baseURL = server.URL

	resp, err := svc.Chat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "Listen."}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "Static crackles from the radio." {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestVeniceService_ChatEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VeniceChatResponse{})
	}))
	defer server.Close()

	svc := NewVeniceService("key", "m", "")
	svc.baseURL = server.URL

	resp, err := svc.Chat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "x"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != msgNoResponse {
		t.Errorf("Message = %q, want placeholder", resp.Message)
	}
}

func TestVeniceService_GenerateImage(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req VeniceImageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "a rusted antenna at dusk" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		if req.Format != "png" {
			t.Errorf("format = %q", req.Format)
		}
		_ = json.NewEncoder(w).Encode(VeniceImageResponse{
			Images: []string{base64.StdEncoding.EncodeToString(png)},
		})
	}))
	defer server.Close()

	svc := NewVeniceService("key", "m", "")
	svc.baseURL = server.URL

	data, err := svc.GenerateImage(context.Background(), "a rusted antenna at dusk")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("decoded image mismatch")
	}
}

func TestVeniceService_GenerateImageEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VeniceImageResponse{})
	}))
	defer server.Close()

	svc := NewVeniceService("key", "m", "")
	svc.baseURL = server.URL

	if _, err := svc.GenerateImage(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty image list")
	}
}

func TestImageStore_SaveLoad(t *testing.T) {
	store, err := NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}

	name, err := store.Save("a dim corridor", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(name) != len("0123456789abcdef.png") {
		t.Errorf("filename = %q", name)
	}

	// Same caption, same filename.
	name2, err := store.Save("a dim corridor", []byte("png-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if name2 != name {
		t.Errorf("content addressing broken: %q vs %q", name, name2)
	}

	data, err := store.Load(name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Load = %q", data)
	}

	missing, err := store.Load("ffffffffffffffff.png")
	if err != nil || missing != nil {
		t.Errorf("missing image should be (nil, nil), got %v, %v", missing, err)
	}
}

func TestMockLLM_Sequencing(t *testing.T) {
	mock := NewMockLLM()
	mock.SetChatResponses("first", "second")

	ctx := context.Background()
	msgs := []chat.Message{{Role: chat.RoleUser, Content: "x"}}

	for _, want := range []string{"first", "second", "second"} {
		resp, err := mock.Chat(ctx, msgs)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Message != want {
			t.Errorf("Message = %q, want %q", resp.Message, want)
		}
	}

	_, calls := mock.GetCalls()
	if len(calls) != 3 {
		t.Errorf("tracked %d calls, want 3", len(calls))
	}
}

func TestMockLLM_Error(t *testing.T) {
	mock := NewMockLLM()
	mock.SetChatError(errors.New("boom"))
	if _, err := mock.Chat(context.Background(), nil); err == nil {
		t.Fatal("expected injected error")
	}
}
