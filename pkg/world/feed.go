package world

import "time"

// FeedType identifies the kind of entry in a session's feed log.
type FeedType string

const (
	FeedPlayerAction FeedType = "player_action"
	FeedNarrative    FeedType = "narrative_event"
	FeedConsequence  FeedType = "consequence_event"
	FeedSceneImage   FeedType = "scene_image"
	FeedVision       FeedType = "vision_analysis"
	FeedChoicePrompt FeedType = "player_choice_prompt"
	FeedError        FeedType = "error_event"
	FeedGameOver     FeedType = "game_over"
)

// FeedEntry is one record in the ordered, monotonically-ID'd feed log.
// UIs poll the feed incrementally by last seen ID.
type FeedEntry struct {
	ID        int       `json:"id"`
	Type      FeedType  `json:"type"`
	Text      string    `json:"text,omitempty"`
	Choices   []string  `json:"choices,omitempty"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
