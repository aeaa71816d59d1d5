package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const (
	// OpenAIAPI is the public API root
	OpenAIAPI          = "https://api.openai.com/v1"
	_openAIMaxTokens   = 200
	_openAITemperature = 0.7
	_openAITimeout     = 10 * time.Second
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// OpenAI describes tracks with a chat completion.
// When the request fails and a fallback is set, the fallback answers instead.
type OpenAI struct {
	logger       *zap.Logger
	client       *http.Client
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	fallback     domain.Provider
}

// NewOpenAI creates a track description provider backed by the chat completions API
func NewOpenAI(logger *zap.Logger, baseURL, apiKey, model, systemPrompt string, fallback domain.Provider) *OpenAI {
	if baseURL == "" {
		baseURL = OpenAIAPI
	}
	return &OpenAI{
		logger:       logger,
		client:       &http.Client{Timeout: _openAITimeout},
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		fallback:     fallback,
	}
}

// Lookup asks the model about the track
func (o *OpenAI) Lookup(ctx context.Context, key domain.IdentityKey) (domain.EnrichmentEntry, error) {
	if strings.TrimSpace(key.Title) == "" {
		return domain.EnrichmentEntry{}, domain.ErrNoMatch
	}

	text, err := o.complete(ctx, key)
	if err != nil {
		if o.fallback == nil || ctx.Err() != nil {
			return domain.EnrichmentEntry{}, err
		}
		o.logger.Warn("OpenAI lookup failed, using fallback", zap.Error(err))
		return o.fallback.Lookup(ctx, key)
	}

	return domain.EnrichmentEntry{
		Key:         key,
		Description: text,
		FetchedAt:   time.Now(),
	}, nil
}

func (o *OpenAI) complete(ctx context.Context, key domain.IdentityKey) (string, error) {
	var messages []chatMessage
	if o.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: o.systemPrompt})
	}
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: fmt.Sprintf("Tell me about the song %q by %s.", key.Title, key.Artist),
	})

	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   _openAIMaxTokens,
		Temperature: _openAITemperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", _userAgent)

	var out chatResponse
	if err := doJSON(o.client, req, &out); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", domain.ErrNoMatch)
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrNoMatch)
	}
	o.logger.Debug("OpenAI response", zap.Int("chars", len(text)))
	return text, nil
}
