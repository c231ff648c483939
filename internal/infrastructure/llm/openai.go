package llm

import (
	"context"
	"time"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

func init() {
	RegisterFactory("openai", newOpenAIProvider)
}

// OpenAIProvider adapts openai-go/v3 to service.LLMClient. Because it
// speaks the OpenAI-compatible wire protocol, this adapter also covers the
// many OpenAI-compatible aggregator endpoints (idealab-style, Azure
// OpenAI-compatible gateways) by pointing BaseURL at them.
type OpenAIProvider struct {
	name   string
	client openai.Client
	models []string
	logger *zap.Logger
}

func newOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{
		name:   firstNonEmpty(cfg.Name, "openai"),
		client: openai.NewClient(opts...),
		models: cfg.Models,
		logger: logger.With(zap.String("provider", "openai")),
	}
}

func (p *OpenAIProvider) Name() string    { return p.name }
func (p *OpenAIProvider) Models() []string { return p.models }

func (p *OpenAIProvider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *OpenAIProvider) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case entity.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    opts.Model,
		Messages: msgs,
	})
	if err != nil {
		return "", service.ClassifyError(err, p.name, opts.Model)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
