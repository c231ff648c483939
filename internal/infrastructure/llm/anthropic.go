package llm

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
)

func init() {
	RegisterFactory("anthropic", newAnthropicProvider)
}

// AnthropicProvider adapts anthropic-sdk-go to service.LLMClient.
type AnthropicProvider struct {
	name   string
	client anthropic.Client
	models []string
	logger *zap.Logger
}

func newAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		name:   firstNonEmpty(cfg.Name, "anthropic"),
		client: anthropic.NewClient(opts...),
		models: cfg.Models,
		logger: logger.With(zap.String("provider", "anthropic")),
	}
}

func (p *AnthropicProvider) Name() string     { return p.name }
func (p *AnthropicProvider) Models() []string  { return p.models }

func (p *AnthropicProvider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool { return true }

// Chat sends messages as a single Anthropic Messages.New call, concatenating
// entity.RoleUser turns as "user" and entity.RoleAssistant turns as "assistant".
func (p *AnthropicProvider) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	var anthMessages []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case entity.RoleAssistant:
			anthMessages = append(anthMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			anthMessages = append(anthMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: 4096,
		Messages:  anthMessages,
	})
	if err != nil {
		return "", service.ClassifyError(err, p.name, opts.Model)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
