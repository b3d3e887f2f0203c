package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/pkg/world"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// ActionAccepted is the async action response with request_id
type ActionAccepted struct {
	RequestID string `json:"request_id"`
	FeedID    int    `json:"feed_id"`
}

// FeedResponse is the incremental feed poll response
type FeedResponse struct {
	Entries []world.FeedEntry `json:"entries"`
	LastID  int               `json:"last_id"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func listScenarios(client *http.Client, baseURL string) ([]string, map[string]string, error) {
	resp, err := client.Get(baseURL + "/v1/scenarios")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	var scenarioMap map[string]string
	if err := json.Unmarshal(body, &scenarioMap); err != nil {
		return nil, nil, err
	}

	var names []string
	for name := range scenarioMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, scenarioMap, nil
}

// CreateSessionRequest matches the API request structure
type CreateSessionRequest struct {
	Scenario string `json:"scenario,omitempty"`
}

func createSession(client *http.Client, baseURL string, scenarioFile string) (*world.WorldState, error) {
	jsonData, err := json.Marshal(CreateSessionRequest{Scenario: scenarioFile})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		baseURL+"/v1/session",
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to create session: %s", errorResp.Error)
	}

	var ws world.WorldState
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &ws, nil
}

func getSession(client *http.Client, baseURL string, sessionID uuid.UUID) (*world.WorldState, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/session/%s", baseURL, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to get session: %s", errorResp.Error)
	}

	var ws world.WorldState
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &ws, nil
}

// sendAction submits a player action and returns the request ID. The turn
// itself resolves asynchronously; new feed entries arrive via pollFeed.
func sendAction(client *http.Client, baseURL string, sessionID uuid.UUID, action string) (string, error) {
	jsonData, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		fmt.Sprintf("%s/v1/session/%s/action", baseURL, sessionID),
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("failed to send action: %s", errorResp.Error)
	}

	var accepted ActionAccepted
	if err := json.Unmarshal(body, &accepted); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return accepted.RequestID, nil
}

// pollFeed fetches feed entries after the given ID.
func pollFeed(client *http.Client, baseURL string, sessionID uuid.UUID, after int) (*FeedResponse, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/session/%s/feed?after=%d", baseURL, sessionID, after))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to poll feed: %s", errorResp.Error)
	}

	var feed FeedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed response: %w", err)
	}
	return &feed, nil
}
