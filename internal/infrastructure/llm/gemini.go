package llm

import (
	"context"
	"time"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

func init() {
	RegisterFactory("gemini", newGeminiProvider)
}

// GeminiProvider adapts google.golang.org/genai to service.LLMClient.
type GeminiProvider struct {
	name   string
	client *genai.Client
	models []string
	logger *zap.Logger
}

func newGeminiProvider(cfg ProviderConfig, logger *zap.Logger) Provider {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.Warn("gemini client init failed, provider will report unavailable", zap.Error(err))
	}
	return &GeminiProvider{
		name:   firstNonEmpty(cfg.Name, "gemini"),
		client: client,
		models: cfg.Models,
		logger: logger.With(zap.String("provider", "gemini")),
	}
}

func (p *GeminiProvider) Name() string     { return p.name }
func (p *GeminiProvider) Models() []string { return p.models }

func (p *GeminiProvider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *GeminiProvider) IsAvailable(ctx context.Context) bool { return p.client != nil }

func (p *GeminiProvider) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (string, error) {
	if p.client == nil {
		return "", service.ClassifyError(errUnavailable, p.name, opts.Model)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	var contents []*genai.Content
	for _, m := range messages {
		role := "user"
		if m.Role == entity.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	resp, err := p.client.Models.GenerateContent(ctx, opts.Model, contents, nil)
	if err != nil {
		return "", service.ClassifyError(err, p.name, opts.Model)
	}
	return resp.Text(), nil
}
