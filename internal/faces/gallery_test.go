package faces

import (
	"math"
	"testing"
)

func TestMatchKnownFaceWithinTolerance(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)
	gallery.Add("Alice", []float64{0, 0, 0, 0})

	// Probe at L2 distance 0.3 from Alice's reference vector.
	name, confidence := gallery.Match([]float64{0.3, 0, 0, 0})
	if name != "Alice" {
		t.Fatalf("name=%q, want Alice", name)
	}
	if math.Abs(confidence-0.7) > 1e-9 {
		t.Fatalf("confidence=%v, want 0.7", confidence)
	}
}

func TestMatchBeyondToleranceIsUnknown(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)
	gallery.Add("Alice", []float64{0, 0, 0, 0})

	name, confidence := gallery.Match([]float64{0.9, 0, 0, 0})
	if name != UnknownName {
		t.Fatalf("name=%q, want %q", name, UnknownName)
	}
	if math.Abs(confidence-0.1) > 1e-9 {
		t.Fatalf("confidence=%v, want 0.1", confidence)
	}
}

func TestMatchPicksClosestEntry(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)
	gallery.Add("Alice", []float64{1, 0, 0, 0})
	gallery.Add("Bob", []float64{0.1, 0, 0, 0})

	name, _ := gallery.Match([]float64{0, 0, 0, 0})
	if name != "Bob" {
		t.Fatalf("name=%q, want Bob", name)
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)

	name, confidence := gallery.Match([]float64{0.1, 0.2, 0.3})
	if name != UnknownName {
		t.Fatalf("name=%q, want %q", name, UnknownName)
	}
	if confidence != 0.0 {
		t.Fatalf("confidence=%v, want 0.0", confidence)
	}
}

func TestMatchConfidenceClamped(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)
	gallery.Add("Alice", []float64{0, 0})

	_, confidence := gallery.Match([]float64{3, 0})
	if confidence != 0.0 {
		t.Fatalf("confidence=%v, want clamp to 0.0", confidence)
	}
}

func TestMatchMismatchedVectorLength(t *testing.T) {
	gallery := NewGallery(DefaultTolerance)
	gallery.Add("Alice", []float64{0, 0, 0})

	name, confidence := gallery.Match([]float64{0, 0})
	if name != UnknownName || confidence != 0.0 {
		t.Fatalf("Match()=(%q, %v), want (%q, 0.0)", name, confidence, UnknownName)
	}
}
