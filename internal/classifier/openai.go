package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/formatting"
)

// OpenAIConfig holds vision provider client parameters.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxTokens bounds the completion; zero uses the provider default.
	MaxTokens int
	// RequestsPerMinute paces classification calls; zero disables pacing.
	RequestsPerMinute float64
}

// OpenAIProvider implements Provider against an OpenAI-compatible
// vision endpoint.
type OpenAIProvider struct {
	client  *openai.Client
	limiter *rate.Limiter
	cfg     OpenAIConfig
}

// NewOpenAIProvider creates a vision classification provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		limiter: limiter,
		cfg:     cfg,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// Classify sends the screenshot to the vision model and parses its JSON
// assessment. Provider failures wrap ErrTransient so the assembler's retry
// policy applies.
func (p *OpenAIProvider) Classify(ctx context.Context, image []byte, pctx Context) (*Output, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	req := openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		MaxTokens: p.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: userPrompt(pctx),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		Temperature: 0.2,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrTransient)
	}

	out, err := formatting.Parse[Output](resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	return &out, nil
}

const systemPrompt = `You are a content-safety assessor for a family ` +
	`monitoring service. Given a screenshot from a child's device, respond ` +
	`with JSON only: {"primary_category", "confidence" (0-100), ` +
	`"secondary_candidates": [{"category", "confidence"}], "concerns": ` +
	`[{"category", "severity" (low|medium|high), "confidence" (0-100), ` +
	`"reasoning"}]}. Report only genuine concerns.`

func userPrompt(pctx Context) string {
	var b strings.Builder

	b.WriteString("Assess this screenshot. Topical categories: ")
	b.WriteString(joinCategories())
	b.WriteString(". Concern categories: ")
	for i, c := range taxonomy.ConcernCategories {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(c))
	}
	b.WriteString(".")

	if pctx.URL != "" {
		fmt.Fprintf(&b, " Captured from URL: %s.", pctx.URL)
	}
	if pctx.AppName != "" {
		fmt.Fprintf(&b, " Active app: %s.", pctx.AppName)
	}
	if pctx.ChildAge > 0 {
		fmt.Fprintf(&b, " Child age: %d.", pctx.ChildAge)
	}

	return b.String()
}

func joinCategories() string {
	categories := []taxonomy.Category{
		taxonomy.CategoryEducation,
		taxonomy.CategoryEntertainment,
		taxonomy.CategorySocialMedia,
		taxonomy.CategoryGaming,
		taxonomy.CategoryOther,
	}

	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
