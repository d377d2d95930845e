package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/errors"
)

// LambdaInvoker is the subset of the AWS Lambda client used by the executor.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda runs the worker as an AWS Lambda function. The request argument is
// the invocation payload. A clean invocation's response payload is treated
// as stdout; a function error is treated as a crash (exit code 1) with the
// error payload as stderr.
type Lambda struct {
	client    LambdaInvoker
	function  string
	qualifier string
}

// NewLambda creates a Lambda executor around an existing client.
func NewLambda(client LambdaInvoker, cfg config.LambdaConfig) *Lambda {
	return &Lambda{
		client:    client,
		function:  cfg.FunctionName,
		qualifier: cfg.Qualifier,
	}
}

// NewLambdaFromConfig loads AWS credentials from the default chain and
// creates a Lambda executor.
func NewLambdaFromConfig(ctx context.Context, cfg config.LambdaConfig) (*Lambda, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewLambda(lambda.NewFromConfig(awsCfg), cfg), nil
}

func (l *Lambda) target() string {
	if l.qualifier != "" {
		return l.function + ":" + l.qualifier
	}
	return l.function
}

// Execute invokes the function synchronously, once.
func (l *Lambda) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	input := &lambda.InvokeInput{
		FunctionName: aws.String(l.function),
		Payload:      []byte(inv.Arg),
	}
	if l.qualifier != "" {
		input.Qualifier = aws.String(l.qualifier)
	}

	start := time.Now()
	out, err := l.client.Invoke(ctx, input)
	elapsed := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Result{ExitCode: -1, Duration: elapsed},
				fmt.Errorf("lambda %s abandoned after %s: %w", l.target(), elapsed.Round(time.Millisecond), ctxErr)
		}
		return nil, errors.NewProcessStartError("lambda:"+l.target(), err).WithProvider(inv.Provider)
	}

	if out.FunctionError != nil {
		stderr := string(out.Payload)
		if stderr == "" {
			stderr = aws.ToString(out.FunctionError)
		}
		return &Result{ExitCode: 1, Stderr: stderr, Duration: elapsed}, nil
	}

	return &Result{ExitCode: 0, Stdout: string(out.Payload), Duration: elapsed}, nil
}
