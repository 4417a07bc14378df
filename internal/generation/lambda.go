package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/sqltranslator/sqltranslator/internal/prompt"
)

const ProviderLambda = "lambda"

type LambdaConfig struct {
	FunctionName string
	Region       string
}

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaClient invokes a model-hosting Lambda function synchronously.
type LambdaClient struct {
	invoker      lambdaInvoker
	functionName string
}

type lambdaRequest struct {
	Direction string `json:"direction"`
	System    string `json:"system"`
	User      string `json:"user"`
}

type lambdaResponse struct {
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func NewLambdaClient(ctx context.Context, cfg LambdaConfig) (*LambdaClient, error) {
	if strings.TrimSpace(cfg.FunctionName) == "" {
		return nil, fmt.Errorf("lambda function name is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newLambdaClient(newLambdaAPI(awsCfg), cfg.FunctionName), nil
}

// newLambdaAPI builds an SDK client that makes exactly one network call per
// Invoke; retries belong to the translate service.
func newLambdaAPI(awsCfg aws.Config, optFns ...func(*lambda.Options)) *lambda.Client {
	optFns = append([]func(*lambda.Options){func(o *lambda.Options) {
		o.Retryer = aws.NopRetryer{}
		o.RetryMaxAttempts = 0
	}}, optFns...)
	return lambda.NewFromConfig(awsCfg, optFns...)
}

func newLambdaClient(invoker lambdaInvoker, functionName string) *LambdaClient {
	return &LambdaClient{invoker: invoker, functionName: strings.TrimSpace(functionName)}
}

func (c *LambdaClient) Generate(ctx context.Context, payload prompt.Payload, budget time.Duration) (string, error) {
	body, err := json.Marshal(lambdaRequest{
		Direction: string(payload.Direction),
		System:    payload.System,
		User:      payload.User,
	})
	if err != nil {
		return "", malformed(ProviderLambda, "marshal invoke payload", err)
	}

	attemptCtx, cancel := withBudget(ctx, budget)
	defer cancel()

	result, err := c.invoker.Invoke(attemptCtx, &lambda.InvokeInput{
		FunctionName: aws.String(c.functionName),
		Payload:      body,
	})
	if err != nil {
		if attemptCtx.Err() == nil {
			if genErr := lambdaAPIFailure(err); genErr != nil {
				return "", genErr
			}
		}
		return "", callFailure(ProviderLambda, ctx, attemptCtx, budget, err)
	}

	if result.FunctionError != nil {
		// Unhandled errors are runtime crashes or timeouts inside the function.
		return "", &Error{
			Kind:       KindBackend,
			Provider:   ProviderLambda,
			StatusCode: int(result.StatusCode),
			Transient:  aws.ToString(result.FunctionError) == "Unhandled",
			Detail:     "function error " + aws.ToString(result.FunctionError) + ": " + excerpt(string(result.Payload)),
		}
	}

	var resp lambdaResponse
	if err := json.Unmarshal(result.Payload, &resp); err != nil {
		return "", malformed(ProviderLambda, "decode invoke response", err)
	}
	if resp.Error != "" {
		return "", &Error{
			Kind:      KindBackend,
			Provider:  ProviderLambda,
			Transient: resp.Retryable,
			Detail:    excerpt(resp.Error),
		}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", malformed(ProviderLambda, "function returned empty text", nil)
	}
	return resp.Text, nil
}

func lambdaAPIFailure(err error) *Error {
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return &Error{Kind: KindBackend, Provider: ProviderLambda, StatusCode: 429, Transient: true, Detail: "throttled", Err: err}
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	return &Error{
		Kind:      KindBackend,
		Provider:  ProviderLambda,
		Transient: apiErr.ErrorFault() == smithy.FaultServer,
		Detail:    excerpt(apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()),
		Err:       err,
	}
}
