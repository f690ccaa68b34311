// Command lambda-decision is the Lambda entry point for Sentinel's
// decision endpoint: a lazily-initialized handler reused across warm invocations,
// configured from the environment.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/byteness/sentinel-fraud/lambdadecision"
)

// Version is set at build time via ldflags.
var Version = "dev"

var handler *lambdadecision.Handler

func main() {
	lambda.Start(handleRequest)
}

// handleRequest lazily builds the Orchestrator on first invocation
// (cold start), then reuses it for the lifetime of the warm container.
func handleRequest(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if handler == nil {
		h, err := initHandler(ctx)
		if err != nil {
			log.Printf("lambda-decision: failed to initialize handler: %v", err)
			return events.APIGatewayV2HTTPResponse{
				StatusCode: 500,
				Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
				Body:       `{"code":"INIT_ERROR","message":"failed to initialize decision handler"}`,
			}, nil
		}
		handler = h
	}
	return handler.HandleRequest(ctx, req)
}

func initHandler(ctx context.Context) (*lambdadecision.Handler, error) {
	cfg, err := lambdadecision.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	orch, err := lambdadecision.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return lambdadecision.NewHandler(orch), nil
}
