package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// ollamaEngine sends rasterized pages to a vision model on a local Ollama
// server. The model itself is the downloadable artifact: Download pulls it
// through the Ollama API.
type ollamaEngine struct {
	host     string
	model    string
	maxPages int
}

func newOllamaEngine(host, model string, maxPages int) *ollamaEngine {
	return &ollamaEngine{host: host, model: model, maxPages: maxPages}
}

func (e *ollamaEngine) Name() string { return "ollama" }

func (e *ollamaEngine) Formats() []OutputFormat {
	return []OutputFormat{FormatMarkdown, FormatText}
}

func (e *ollamaEngine) api() (*api.Client, error) {
	base, err := url.Parse(e.host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", e.host, err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

func (e *ollamaEngine) Probe(ctx context.Context) ProbeResult {
	client, err := e.api()
	if err != nil {
		return ProbeResult{Err: err.Error(), RequiresDownload: true}
	}
	if _, err := client.Version(ctx); err != nil {
		return ProbeResult{
			Err:              fmt.Sprintf("ollama server unreachable at %s: %v", e.host, err),
			RequiresDownload: true,
		}
	}
	return ProbeResult{Available: true, RequiresDownload: true}
}

func (e *ollamaEngine) Download(ctx context.Context) error {
	client, err := e.api()
	if err != nil {
		return err
	}

	var last string
	err = client.Pull(ctx, &api.PullRequest{Model: e.model}, func(p api.ProgressResponse) error {
		if p.Status != last {
			slog.Debug("pulling ollama model", "model", e.model, "status", p.Status)
			last = p.Status
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pull %s: %w", e.model, err)
	}
	return nil
}

func (e *ollamaEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	client, err := e.api()
	if err != nil {
		return "", err
	}

	pages, err := renderPages(ctx, path, e.maxPages)
	if err != nil {
		return "", err
	}
	images := make([]api.ImageData, 0, len(pages))
	for _, page := range pages {
		images = append(images, api.ImageData(page))
	}

	stream := false
	req := &api.ChatRequest{
		Model: e.model,
		Messages: []api.Message{{
			Role:    "user",
			Content: visionPrompt(format),
			Images:  images,
		}},
		Stream: &stream,
	}

	var sb strings.Builder
	err = client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("model %s returned an empty response", e.model)
	}
	return out, nil
}
