package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig holds oracle endpoint configuration
type ClientConfig struct {
	Endpoint    string        `json:"endpoint"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	ScanTimeout time.Duration `json:"scan_timeout"`
}

// DefaultClientConfig returns default configuration. Quick verdict queries
// get 30s; full custom scans may run much longer.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxTokens:   1024,
		Temperature: 0.3,
		Timeout:     30 * time.Second,
		ScanTimeout: 300 * time.Second,
	}
}

// Client talks to the external language-model analyzer over HTTP
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	scanClient *http.Client
}

// NewClient creates an oracle client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = 300 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		scanClient: &http.Client{Timeout: config.ScanTimeout},
	}
}

// chatRequest is the OpenAI-shaped request the analyzer endpoint accepts
type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the raw text response
func (c *Client) Complete(prompt string) (string, error) {
	return c.complete(prompt, c.httpClient)
}

// CompleteScan sends a long-running scan prompt under the extended timeout
func (c *Client) CompleteScan(prompt string) (string, error) {
	return c.complete(prompt, c.scanClient)
}

func (c *Client) complete(prompt string, httpClient *http.Client) (string, error) {
	if c.config.Endpoint == "" {
		return "", fmt.Errorf("AI endpoint not configured")
	}

	reqBody := chatRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling AI request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling AI oracle: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading AI response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("error parsing AI response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("AI oracle error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("AI oracle returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
