package faces

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memorylink/vision-server/internal/protocol"
)

// Encoding is one face found by the encoder capability: a pixel box plus a
// 128-dimension embedding vector.
type Encoding struct {
	Box    protocol.FaceLocation
	Vector []float64
}

// Encoder produces face encodings for an image. Implementations wrap the
// external face-encoding service.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([]Encoding, error)
}

// HTTPEncoder calls a face-encoder service over HTTP.
type HTTPEncoder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEncoder builds an encoder client for the given base URL.
func NewHTTPEncoder(baseURL string) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type encodeRequest struct {
	Image string `json:"image"`
}

type encodeResponse struct {
	Faces []struct {
		Box       protocol.FaceLocation `json:"box"`
		Embedding []float64             `json:"embedding"`
	} `json:"faces"`
}

// Encode posts the raw image and returns the detected encodings.
func (e *HTTPEncoder) Encode(ctx context.Context, image []byte) ([]Encoding, error) {
	body, err := json.Marshal(encodeRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face encoder request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face encoder status %d: %s", resp.StatusCode, payload)
	}

	var parsed encodeResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("face encoder response: %w", err)
	}

	encodings := make([]Encoding, 0, len(parsed.Faces))
	for _, face := range parsed.Faces {
		encodings = append(encodings, Encoding{Box: face.Box, Vector: face.Embedding})
	}
	return encodings, nil
}
