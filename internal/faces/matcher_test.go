package faces

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"go.uber.org/zap"

	"github.com/memorylink/vision-server/internal/protocol"
)

type fakeEncoder struct {
	encodings []Encoding
	err       error
}

func (f *fakeEncoder) Encode(ctx context.Context, img []byte) ([]Encoding, error) {
	return f.encodings, f.err
}

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestDetectFacesMatchesGallery(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)
	gallery.Add("Alice", []float64{0, 0, 0, 0})
	encoder := &fakeEncoder{encodings: []Encoding{{
		Box:    protocol.FaceLocation{Top: 10, Right: 50, Bottom: 60, Left: 5},
		Vector: []float64{0.3, 0, 0, 0},
	}}}
	matcher := NewMatcher(encoder, gallery, zap.NewNop())

	report := matcher.DetectFaces(context.Background(), testImage(t))
	if report.Error != "" {
		t.Fatalf("report error=%q, want none", report.Error)
	}
	if report.Count != 1 {
		t.Fatalf("count=%d, want 1", report.Count)
	}
	face := report.Faces[0]
	if face.Name != "Alice" {
		t.Fatalf("name=%q, want Alice", face.Name)
	}
	if face.Location.Top != 10 || face.Location.Left != 5 {
		t.Fatalf("location=%+v, want encoder box preserved", face.Location)
	}
}

func TestDetectFacesUndecodablePayload(t *testing.T) {
	matcher := NewMatcher(&fakeEncoder{}, NewGallery(DefaultTolerance), zap.NewNop())

	report := matcher.DetectFaces(context.Background(), []byte("not an image"))
	if report.Count != 0 || len(report.Faces) != 0 {
		t.Fatalf("report=%+v, want empty detection list", report)
	}
	if report.Error == "" {
		t.Fatal("report error empty, want decode error tag")
	}
}

func TestDetectFacesEncoderFailure(t *testing.T) {
	encoder := &fakeEncoder{err: errors.New("encoder offline")}
	matcher := NewMatcher(encoder, NewGallery(DefaultTolerance), zap.NewNop())

	report := matcher.DetectFaces(context.Background(), testImage(t))
	if report.Count != 0 {
		t.Fatalf("count=%d, want 0", report.Count)
	}
	if report.Error == "" {
		t.Fatal("report error empty, want encoder error tag")
	}
}

func TestDetectFacesEmptyGalleryUnknown(t *testing.T) {
	encoder := &fakeEncoder{encodings: []Encoding{{Vector: []float64{0.1, 0.2}}}}
	matcher := NewMatcher(encoder, NewGallery(DefaultTolerance), zap.NewNop())

	report := matcher.DetectFaces(context.Background(), testImage(t))
	if report.Count != 1 {
		t.Fatalf("count=%d, want 1", report.Count)
	}
	if report.Faces[0].Name != UnknownName {
		t.Fatalf("name=%q, want %q", report.Faces[0].Name, UnknownName)
	}
	if report.Faces[0].Confidence != 0.0 {
		t.Fatalf("confidence=%v, want 0.0", report.Faces[0].Confidence)
	}
}
