// Package gemini implements the chat provider on the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/chat"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.0-flash"

	// DefaultMaxOutputTokens keeps spoken replies short.
	DefaultMaxOutputTokens = 500
)

// Provider opens Gemini chats.
type Provider struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client

	client *genai.Client
}

// New creates a Gemini provider for apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:          apiKey,
		model:           DefaultModel,
		maxOutputTokens: DefaultMaxOutputTokens,
		httpClient:      &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// NewSession starts an empty chat with the given system instruction.
func (p *Provider) NewSession(ctx context.Context, systemInstruction string) (chat.Handle, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(p.maxOutputTokens),
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	c, err := p.client.Chats.Create(ctx, p.model, cfg, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return &handle{chat: c}, nil
}

type handle struct {
	chat *genai.Chat
}

func (h *handle) Send(ctx context.Context, text string) (string, error) {
	resp, err := h.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", mapError(err)
	}
	return resp.Text(), nil
}
