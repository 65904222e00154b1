package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/codeverdict/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
	"go.uber.org/zap"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 1024
)

var ErrMissingAPIKey = errors.New("AI provider api key is empty")

// New builds the configured backend wrapped with rate limiting and retries.
func New(ctx context.Context, cfg appcfg.AIConfig, log *zap.Logger) (Generator, error) {
	base, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Chain(base,
		Retry(cfg.MaxAttempts, cfg.RetryBase(), log),
		RateLimit(cfg.RPS, cfg.Burst),
	), nil
}

func newBackend(ctx context.Context, cfg appcfg.AIConfig) (Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	timeout := cfg.Timeout()
	switch normalizeProviderType(cfg.Provider) {
	case appcfg.AIProviderGemini:
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewGemini(ctx, GeminiOptions{
			APIKey:          apiKey,
			Model:           cfg.Model,
			MaxOutputTokens: cfg.MaxOutputTokens,
			BaseURL:         cfg.Endpoint,
		})
	case appcfg.AIProviderOpenAI, appcfg.AIProviderAnthropic:
		model, name, err := buildLanguageModel(cfg)
		if err != nil {
			return nil, err
		}
		return &jetifyGenerator{model: model, name: name, maxTokens: cfg.MaxOutputTokens, timeout: timeout}, nil
	case appcfg.AIProviderOpenAICompatible:
		return NewOpenAICompatible(cfg.Endpoint, apiKey, cfg.Model, cfg.MaxOutputTokens, &http.Client{Timeout: timeout}), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" {
		return appcfg.AIProviderOpenAICompatible
	}
	return t
}

// jetifyGenerator serves the OpenAI and Anthropic backends through go.jetify.com/ai.
type jetifyGenerator struct {
	model     jetapi.LanguageModel
	name      string
	maxTokens int
	timeout   time.Duration
}

func (j *jetifyGenerator) Name() string { return j.name }

func (j *jetifyGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	maxTokens := j.maxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	resp, err := jetai.GenerateText(
		ctx,
		buildAIPromptMessages(system, user),
		jetai.WithModel(j.model),
		jetai.WithMaxOutputTokens(maxTokens),
	)
	if err != nil {
		return "", classifySDKError(err)
	}
	return extractTextFromAIResponse(resp)
}

func buildAIPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractTextFromAIResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}

	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func buildLanguageModel(cfg appcfg.AIConfig) (jetapi.LanguageModel, string, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, "", ErrMissingAPIKey
	}
	modelID := strings.TrimSpace(cfg.Model)
	endpoint := strings.TrimSpace(cfg.Endpoint)

	// Retries are handled by the Retry middleware.
	if normalizeProviderType(cfg.Provider) == appcfg.AIProviderAnthropic {
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)), "anthropic:" + modelID, nil
	}

	if modelID == "" {
		modelID = defaultOpenAIModel
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)), "openai:" + modelID, nil
}

// classifySDKError marks client-side failures from the official SDKs as permanent.
func classifySDKError(err error) error {
	var oaErr *openaiclient.Error
	if errors.As(err, &oaErr) && isPermanentStatus(oaErr.StatusCode) {
		return Permanent(err)
	}
	var anErr *anthropicclient.Error
	if errors.As(err, &anErr) && isPermanentStatus(anErr.StatusCode) {
		return Permanent(err)
	}
	return err
}

func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

// OpenAICompatible talks to any server exposing POST /v1/chat/completions.
type OpenAICompatible struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

func NewOpenAICompatible(endpoint, apiKey, model string, maxTokens int, client *http.Client) *OpenAICompatible {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAICompatible{
		endpoint:  normalizeOpenAICompatibleEndpoint(endpoint),
		apiKey:    strings.TrimSpace(apiKey),
		model:     strings.TrimSpace(model),
		maxTokens: maxTokens,
		client:    client,
	}
}

func (o *OpenAICompatible) Name() string { return "openai-compatible:" + o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func (o *OpenAICompatible) Generate(ctx context.Context, system, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{Model: o.model, Messages: messages, MaxTokens: o.maxTokens})
	if err != nil {
		return "", Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", Permanent(err)
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("openai-compatible error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if isPermanentStatus(resp.StatusCode) {
			return "", Permanent(err)
		}
		return "", err
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode openai-compatible response: %w", err)
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return "", fmt.Errorf("openai-compatible error: %s", result.Error.Message)
	}
	if strings.TrimSpace(result.Message) != "" && len(result.Choices) == 0 {
		return "", fmt.Errorf("openai-compatible error: %s", result.Message)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}

	parsed.Path = strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/v1")
	return strings.TrimRight(parsed.String(), "/")
}
