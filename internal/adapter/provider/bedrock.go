package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"roleroute/internal/domain"
	"roleroute/internal/infra/config"
	"roleroute/internal/infra/tracer"
)

// bedrockConverseAPI abstracts the Bedrock runtime client for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.Provider via the AWS Bedrock Converse API.
type BedrockProvider struct {
	name   string
	model  string
	client bedrockConverseAPI
	logger *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		client: bedrockruntime.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// newBedrockProviderWithClient creates a BedrockProvider with an injected client (for testing).
func newBedrockProviderWithClient(name, model string, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{
		name:   name,
		model:  model,
		client: client,
		logger: logger,
	}
}

// Execute implements domain.Provider.
func (p *BedrockProvider) Execute(ctx context.Context, req domain.ProviderRequest) (*domain.ProviderResult, error) {
	ctx, span := tracer.StartSpan(ctx, "provider.execute",
		trace.WithAttributes(
			tracer.StringAttr("provider.name", p.name),
			tracer.StringAttr("provider.tool", req.Tool),
		),
	)
	defer span.End()

	model := req.Model
	if model == "" {
		model = p.model
	}

	system, user := buildPrompt(req)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: user},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		},
	}

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		mapped := mapBedrockError(err)
		tracer.RecordError(span, mapped)
		return nil, mapped
	}

	result := &domain.ProviderResult{Model: model}
	if output.Usage != nil {
		in := int(aws.ToInt32(output.Usage.InputTokens))
		out := int(aws.ToInt32(output.Usage.OutputTokens))
		result.Usage = domain.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		}
	}

	if outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range outMsg.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				result.Output = text.Value
				break
			}
		}
	}
	if result.Output == "" {
		err := fmt.Errorf("%w: response contained no text block", domain.ErrProviderFailure)
		tracer.RecordError(span, err)
		return nil, err
	}
	if req.Shape == domain.OutputJSON {
		result.Output = extractJSON(result.Output)
	}

	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logExecuteCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.Provider.
func (p *BedrockProvider) Name() string { return p.name }

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case "AccessDeniedException", "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case "ModelTimeoutException":
			return fmt.Errorf("%w: %s", domain.ErrProviderTimeout, msg)
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrProviderFailure, msg)
		}
	}

	return fmt.Errorf("%w: %s", domain.ErrProviderFailure, msg)
}

var _ domain.Provider = (*BedrockProvider)(nil)
