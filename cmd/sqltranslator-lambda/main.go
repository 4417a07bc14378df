// Command sqltranslator-lambda serves translations as an AWS Lambda function.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/generation"
	"github.com/sqltranslator/sqltranslator/internal/lambdafn"
	"github.com/sqltranslator/sqltranslator/internal/observability"
	"github.com/sqltranslator/sqltranslator/internal/translate"
)

func main() {
	cfg, err := config.LoadFromEnv("sqltranslator-lambda")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	client, err := generation.New(ctx, cfg.AI)
	if err != nil {
		logger.Error("failed to initialize generation backend", slog.Any("error", err))
		os.Exit(1)
	}
	translator, err := translate.NewService(client, translate.ConfigFrom(cfg.Translate), translate.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	handler := &lambdafn.Handler{
		Translator:   translator,
		Logger:       logger,
		FunctionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Warn("aws config unavailable, warmup fan-out disabled", slog.Any("error", err))
	} else {
		handler.Invoker = lambdasdk.NewFromConfig(awsCfg)
	}

	lambda.Start(handler.Handle)
}
