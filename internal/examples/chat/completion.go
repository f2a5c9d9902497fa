package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// completionClient calls an external text completion endpoint.
type completionClient struct {
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func newCompletionClient(endpoint string) *completionClient {
	return &completionClient{
		endpoint:  endpoint,
		model:     "default",
		maxTokens: 256,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// complete sends prompt to the completion endpoint and returns the first
// choice's text.
func (cc *completionClient) complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(completionRequest{
		Model:     cc.model,
		Prompt:    prompt,
		MaxTokens: cc.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cc.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion endpoint responded with status %v", resp.StatusCode)
	}

	var cr completionResponse
	err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cr)
	if err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("completion response held no choices")
	}

	return cr.Choices[0].Text, nil
}
