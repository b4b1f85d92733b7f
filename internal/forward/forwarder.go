package forward

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single dispatch. It stays short regardless of the
// VLM timeout policy so forwarding can never stall frame intake.
const DefaultTimeout = 2 * time.Second

// Forwarder posts trigger hits to the secondary deep-inference service.
// Dispatches are fire-and-forget: they run detached, are bounded by a short
// timeout, and never surface an error to the caller.
type Forwarder struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// New builds a forwarder for the given receiver URL.
func New(url string, timeout time.Duration, logger *zap.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type payload struct {
	Triggers  []string `json:"triggers"`
	Image     string   `json:"image"`
	Timestamp string   `json:"timestamp"`
}

// Forward dispatches one trigger hit with the full frame. It returns
// immediately; delivery is best effort.
func (f *Forwarder) Forward(image []byte, trigger string) {
	if f.url == "" {
		return
	}
	go f.dispatch(payload{
		Triggers:  []string{trigger},
		Image:     base64.StdEncoding.EncodeToString(image),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (f *Forwarder) dispatch(p payload) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	body, err := json.Marshal(p)
	if err != nil {
		f.logger.Warn("forward encode failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		f.logger.Warn("forward request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("forward dispatch dropped",
			zap.Strings("triggers", p.Triggers), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		f.logger.Warn("forward receiver rejected dispatch",
			zap.Strings("triggers", p.Triggers), zap.Int("status", resp.StatusCode))
		return
	}
	f.logger.Debug("forward dispatched", zap.Strings("triggers", p.Triggers))
}
