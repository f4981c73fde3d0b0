package gemini

import "net/http"

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithModel sets the model used for new chats.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxOutputTokens caps the length of each reply.
func WithMaxOutputTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxOutputTokens = n
		}
	}
}
