// Package llm はOpenAI互換のchat completions APIクライアントを提供する。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEmptyResponse はモデルが空の応答を返したことを示す。
var ErrEmptyResponse = errors.New("llm: empty response")

const maxResponseBytes = 4 << 20

// Message はchat completionsの1メッセージ。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config はClientの設定。
type Config struct {
	BaseURL  string
	APIKey   string
	Settings Settings

	// HTTPClient は外向き通信に使うクライアント。タイムアウトはこのクライアントで設定する。
	HTTPClient *http.Client
}

// Client はOpenAI互換エンドポイント（既定はNebius AI Studio）のクライアント。
type Client struct {
	baseURL    string
	apiKey     string
	settings   Settings
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		settings:   cfg.Settings,
		httpClient: httpClient,
	}
}

// Model は使用中のモデル名を返す。
func (c *Client) Model() string {
	return c.settings.Model
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Detail string `json:"detail"`
}

// Complete はメッセージ列を送り、最初のchoiceの本文を返す。
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.settings.Model,
		Messages:    messages,
		MaxTokens:   c.settings.MaxTokens,
		Temperature: c.settings.Temperature,
		TopP:        c.settings.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("llm request encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("llm response read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, errorMessage(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("llm response decode: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	return parsed.Choices[0].Message.Content, nil
}

// errorMessage はエラーボディからメッセージを取り出す。JSONでなければ先頭だけを返す。
func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error.Message != "" {
			return e.Error.Message
		}
		if e.Detail != "" {
			return e.Detail
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "no error details"
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
