package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
)

// bedrockEngine sends rasterized pages to a vision model on AWS Bedrock
// through langchaingo. No download step: the model is hosted.
type bedrockEngine struct {
	model    string
	region   string
	maxPages int
}

func newBedrockEngine(model, region string, maxPages int) *bedrockEngine {
	return &bedrockEngine{model: model, region: region, maxPages: maxPages}
}

func (e *bedrockEngine) Name() string { return "bedrock" }

func (e *bedrockEngine) Formats() []OutputFormat {
	return []OutputFormat{FormatMarkdown, FormatText, FormatJSON}
}

func (e *bedrockEngine) awsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if e.region != "" {
		opts = append(opts, awsconfig.WithRegion(e.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func (e *bedrockEngine) Probe(ctx context.Context) ProbeResult {
	cfg, err := e.awsConfig(ctx)
	if err != nil {
		return ProbeResult{Err: err.Error()}
	}
	if cfg.Region == "" {
		return ProbeResult{Err: "no AWS region configured (set AWS_REGION)"}
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return ProbeResult{Err: fmt.Sprintf("no AWS credentials: %v", err)}
	}
	return ProbeResult{Available: true}
}

func (e *bedrockEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	cfg, err := e.awsConfig(ctx)
	if err != nil {
		return "", err
	}
	client := bedrockruntime.NewFromConfig(cfg)
	model, err := bedrock.New(bedrock.WithClient(client), bedrock.WithModel(e.model))
	if err != nil {
		return "", fmt.Errorf("create bedrock model: %w", err)
	}

	pages, err := renderPages(ctx, path, e.maxPages)
	if err != nil {
		return "", err
	}

	parts := []llms.ContentPart{llms.TextPart(visionPrompt(format))}
	for _, page := range pages {
		parts = append(parts, llms.BinaryPart(http.DetectContentType(page), page))
	}
	messages := []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	}}

	resp, err := model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("bedrock generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", e.model)
	}

	out := strings.TrimSpace(resp.Choices[0].Content)
	if out == "" {
		return "", fmt.Errorf("model %s returned an empty response", e.model)
	}
	return out, nil
}
