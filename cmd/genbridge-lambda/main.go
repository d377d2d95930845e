// Package main is the AWS Lambda entry point. API Gateway proxy events are
// served with the same routes and responses as `genbridge serve`.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/genbridge/internal/app"
	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/server"
)

func main() {
	ctx := context.Background()

	handler, err := newHandler(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "genbridge-lambda:", err)
		os.Exit(1)
	}
	lambda.Start(handler.Handle)
}

// newHandler loads configuration from GENBRIDGE_* variables and an optional
// config file named by GENBRIDGE_CONFIG, then builds the handler.
func newHandler(ctx context.Context) (*server.LambdaHandler, error) {
	v := viper.New()
	config.RegisterDefaults(v)
	v.SetEnvPrefix("GENBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path := os.Getenv("GENBRIDGE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []server.LambdaOption{
		server.WithLambdaLogger(a.Logger),
		server.WithLambdaMaxBody(cfg.Server.MaxBodyBytes),
		server.WithLambdaRetryAfter(cfg.Pool.QueueTimeout),
	}
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		opts = append(opts, server.WithSelfInvoke(lambdasdk.NewFromConfig(awsCfg), fn))
	}
	return server.NewLambdaHandler(a.Bridge, opts...), nil
}
