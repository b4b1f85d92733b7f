package vision

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Fallback is the fixed reply used whenever the VLM backend cannot produce
// text. Callers can rely on Describe always returning something sayable.
const Fallback = "Sorry, I could not analyze the current frame."

// Config describes the Ollama backend for frame analysis.
type Config struct {
	URL          string
	Model        string
	SystemPrompt string
	// Timeout bounds each describe call. Zero disables the deadline, which
	// tolerates slow local models.
	Timeout time.Duration
}

// Client wraps the Ollama API for single-frame vision queries. It never
// returns an error past its boundary: failures degrade to Fallback.
type Client struct {
	api    *api.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient builds a vision client for the given Ollama base URL.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Client{
		api:    api.NewClient(base, http.DefaultClient),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Describe sends one image and prompt to the model and returns the response
// text. Any backend failure (unreachable, timeout, empty answer) yields
// Fallback instead of an error.
func (c *Client) Describe(ctx context.Context, image []byte, prompt string) string {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		System: c.cfg.SystemPrompt,
		Images: []api.ImageData{api.ImageData(image)},
		Stream: &stream,
	}

	start := time.Now()
	var response string
	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response = resp.Response
		return nil
	})
	if err != nil {
		c.logger.Warn("vlm describe failed",
			zap.String("model", c.cfg.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return Fallback
	}

	response = strings.TrimSpace(response)
	if response == "" {
		c.logger.Warn("vlm returned empty response", zap.String("model", c.cfg.Model))
		return Fallback
	}

	c.logger.Debug("vlm describe ok",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(response)),
	)
	return response
}
