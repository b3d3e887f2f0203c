package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/dreadlabs/dread-engine/internal/services"
	"github.com/dreadlabs/dread-engine/pkg/prompts"
)

// FallbackDispatch is narrated when dispatch generation fails outright. It
// is deliberately survivable: a generation hiccup must never kill the player.
const FallbackDispatch = "The shadows shift, but nothing gives itself away."

const dispatchRuneLimit = 600

// DispatchResult is the parsed outcome of one player action.
type DispatchResult struct {
	Dispatch    string `json:"dispatch"`
	PlayerAlive bool   `json:"player_alive"`
	Scene       string `json:"scene,omitempty"`
}

// DispatchGenerator turns a player action into its narrated consequence.
type DispatchGenerator struct {
	llm    services.LLMService
	logger *slog.Logger
}

func NewDispatchGenerator(llm services.LLMService, logger *slog.Logger) *DispatchGenerator {
	return &DispatchGenerator{llm: llm, logger: logger}
}

// Generate never fails: any generation or parse error degrades to the
// fallback dispatch with the player alive.
func (g *DispatchGenerator) Generate(ctx context.Context, premise, contextText, spatial, choice string, refImage []byte) DispatchResult {
	messages := prompts.Dispatch(premise, contextText, spatial, choice, refImage)

	resp, err := g.llm.Chat(ctx, messages)
	if err != nil {
		g.logger.Error("Dispatch generation failed, using fallback", "error", err)
		return DispatchResult{Dispatch: FallbackDispatch, PlayerAlive: true}
	}

	result, err := parseDispatch(resp.Message)
	if err != nil {
		g.logger.Warn("Dispatch response unparseable, using fallback",
			"error", err, "response", resp.Message)
		return DispatchResult{Dispatch: FallbackDispatch, PlayerAlive: true}
	}

	result.Dispatch = truncateRunes(result.Dispatch, dispatchRuneLimit)
	return result
}

// parseDispatch parses the model reply strictly, then once more with
// markdown fences stripped. Anything else is an error.
func parseDispatch(raw string) (DispatchResult, error) {
	var parsed struct {
		Dispatch    string `json:"dispatch"`
		PlayerAlive *bool  `json:"player_alive"`
		Scene       string `json:"scene"`
	}

	attempt := strings.TrimSpace(raw)
	err := json.Unmarshal([]byte(attempt), &parsed)
	if err != nil {
		attempt = stripFences(attempt)
		err = json.Unmarshal([]byte(attempt), &parsed)
	}
	if err != nil {
		return DispatchResult{}, err
	}
	if parsed.Dispatch == "" || parsed.PlayerAlive == nil {
		return DispatchResult{}, errMissingDispatchFields
	}

	return DispatchResult{
		Dispatch:    parsed.Dispatch,
		PlayerAlive: *parsed.PlayerAlive,
		Scene:       strings.TrimSpace(parsed.Scene),
	}, nil
}

var errMissingDispatchFields = errors.New("dispatch reply missing required fields")

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json" etc.).
		first := strings.TrimSpace(s[:idx])
		if first != "" && !strings.HasPrefix(first, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
