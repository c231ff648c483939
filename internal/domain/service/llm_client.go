package service

import (
	"context"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

// LLMClient is C1, the external contract (§6): a single call that sends a
// chat completion and returns text or an error; the provider is selected
// by model name. This is deliberately narrower than the teacher's
// streaming-capable agent-loop LLMClient — the harness never streams, it
// only needs the final text per turn.
type LLMClient interface {
	// Chat sends messages to model (optionally pinned to deploymentID for
	// providers where several deployments share one model) and returns the
	// assistant's text. timeout bounds the call; callers pass a context
	// already carrying that deadline.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// Name identifies the provider for limiter/classifier bookkeeping.
	Name() string

	// SupportsModel reports whether this provider can serve model.
	SupportsModel(model string) bool
}

// ChatMessage is one turn of conversation sent to the LLM.
type ChatMessage struct {
	Role    entity.Role
	Content string
}

// ChatOptions parameterizes one Chat call.
type ChatOptions struct {
	Model        string
	DeploymentID string
	Timeout      int // seconds
}
