// Package spawn defines the subagent-spawn collaborator: the external
// surface that actually brings an agent to life for a task. The default
// implementation calls the Anthropic API (directly or via AWS Bedrock).
package spawn

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the outcome of a spawn attempt.
type Status string

const (
	// StatusAccepted means the collaborator took the work.
	StatusAccepted Status = "accepted"
	// StatusRejected means the collaborator refused the work.
	StatusRejected Status = "rejected"
)

// Request describes the subagent to spawn.
type Request struct {
	// Task is the assembled task input handed to the agent.
	Task string
	// Label is a short human-readable label for the agent.
	Label string
	// AgentID is the role name driving the agent's behavior.
	AgentID string
	// Model optionally overrides the role's model tag.
	Model string
	// Thinking optionally overrides the role's thinking-depth tag.
	Thinking string
}

// Result is the collaborator's answer.
type Result struct {
	// Status is accepted or rejected.
	Status Status
	// ChildSessionKey identifies the spawned agent's session, when accepted.
	ChildSessionKey string
	// Error explains a rejection.
	Error string
}

// Accepted is a convenience predicate.
func (r Result) Accepted() bool {
	return r.Status == StatusAccepted
}

// Spawner is the subagent-spawn collaborator contract. Implementations
// must be callable re-entrantly.
type Spawner interface {
	Spawn(ctx context.Context, req Request) (Result, error)
}

// ClientConfig configures the Anthropic-backed spawner.
type ClientConfig struct {
	// Model is the default model when a request carries none.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// MaxTokens caps the spawned agent's response size.
	MaxTokens int64
}

// Client is the default Spawner, backed by the Anthropic SDK.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	max     int64
	bedrock bool
	log     *zap.Logger
}

// NewClient creates an Anthropic-backed spawner.
func NewClient(cfg ClientConfig, log *zap.Logger) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	max := cfg.MaxTokens
	if max <= 0 {
		max = 4096
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		max:     max,
		bedrock: cfg.UseAWSBedrock,
		log:     log,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profiles: us.anthropic.{model}-v1:0.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Spawn sends the task to the model as a single message turn. A normal
// response is an acceptance; an API error is a rejection carrying the
// error message, not a raised error, so dispatchers treat it as a task
// failure rather than an infrastructure fault.
func (c *Client) Spawn(ctx context.Context, req Request) (Result, error) {
	model := c.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
		if c.bedrock {
			model = translateModelForBedrock(model)
		}
	}

	system := fmt.Sprintf("You are the %s agent. Label: %s.", req.AgentID, req.Label)

	c.log.Debug("spawning subagent",
		zap.String("agent_id", req.AgentID),
		zap.String("label", req.Label),
		zap.String("model", string(model)))

	_, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: c.max,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Task)),
		},
	})
	if err != nil {
		return Result{Status: StatusRejected, Error: err.Error()}, nil
	}

	return Result{
		Status:          StatusAccepted,
		ChildSessionKey: uuid.NewString(),
	}, nil
}

// Compile-time verification that Client implements Spawner.
var _ Spawner = (*Client)(nil)
