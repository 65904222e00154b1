package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiOptions configures the Gemini backend.
type GeminiOptions struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
	// BaseURL overrides the Gemini API host, mainly for proxies and tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini is a thin wrapper around the official genai client.
type Gemini struct {
	cli       *genai.Client
	model     string
	maxTokens int32
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Gemini{cli: cli, model: model, maxTokens: int32(maxTokens)}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{MaxOutputTokens: g.maxTokens}
	if strings.TrimSpace(system) != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.Code) {
			return "", Permanent(err)
		}
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
