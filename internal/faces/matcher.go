package faces

import (
	"bytes"
	"context"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/memorylink/vision-server/internal/protocol"

	// Frames from browser capture may arrive webp-encoded.
	_ "golang.org/x/image/webp"
)

// Matcher runs the full detect-encode-match pipeline for one frame against
// the shared gallery. Safe for concurrent use; the gallery is read-only.
type Matcher struct {
	encoder Encoder
	gallery *Gallery
	logger  *zap.Logger
}

// NewMatcher wires an encoder capability to a loaded gallery.
func NewMatcher(encoder Encoder, gallery *Gallery, logger *zap.Logger) *Matcher {
	return &Matcher{encoder: encoder, gallery: gallery, logger: logger}
}

// DetectFaces returns named detections for a raw image payload. Failures never
// propagate: an undecodable payload or unreachable encoder yields an empty
// report carrying an error tag.
func (m *Matcher) DetectFaces(ctx context.Context, image []byte) protocol.FaceReport {
	if _, err := imaging.Decode(bytes.NewReader(image)); err != nil {
		m.logger.Warn("frame decode failed", zap.Error(err))
		return protocol.FaceReport{Faces: []protocol.Face{}, Error: err.Error()}
	}

	encodings, err := m.encoder.Encode(ctx, image)
	if err != nil {
		m.logger.Warn("face encoding failed", zap.Error(err))
		return protocol.FaceReport{Faces: []protocol.Face{}, Error: err.Error()}
	}

	found := make([]protocol.Face, 0, len(encodings))
	for _, encoding := range encodings {
		name, confidence := m.gallery.Match(encoding.Vector)
		found = append(found, protocol.Face{
			Name:       name,
			Location:   encoding.Box,
			Confidence: confidence,
		})
	}

	if len(found) == 0 {
		m.logger.Debug("no faces found in frame")
	}
	return protocol.FaceReport{Count: len(found), Faces: found}
}
