package faces

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// UnknownName is the sentinel identity for an unmatched face.
const UnknownName = "Unknown"

// DefaultTolerance is the maximum gallery distance still counted as a match.
const DefaultTolerance = 0.6

type galleryEntry struct {
	name   string
	vector []float64
}

// Gallery is the immutable set of named reference encodings. It is loaded once
// at startup and shared read-only across all connections.
type Gallery struct {
	entries   []galleryEntry
	tolerance float64
}

// NewGallery builds a gallery from explicit name/vector pairs. Mostly useful
// in tests; production galleries come from LoadGallery.
func NewGallery(tolerance float64) *Gallery {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Gallery{tolerance: tolerance}
}

// Add appends a reference entry. Call only during startup, before the gallery
// is shared.
func (g *Gallery) Add(name string, vector []float64) {
	g.entries = append(g.entries, galleryEntry{name: name, vector: vector})
}

// Len returns the number of reference entries.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Names returns the distinct reference names in load order.
func (g *Gallery) Names() []string {
	names := make([]string, 0, len(g.entries))
	for _, entry := range g.entries {
		names = append(names, entry.name)
	}
	return names
}

// Match finds the closest reference entry for an encoding vector. The name is
// UnknownName when the minimum distance exceeds the tolerance, and confidence
// is 1 - distance clamped to [0,1]. With an empty gallery the confidence is
// pinned to 0.
func (g *Gallery) Match(vector []float64) (string, float64) {
	if g.Len() == 0 {
		return UnknownName, 0.0
	}

	bestName := UnknownName
	bestDistance := -1.0
	for _, entry := range g.entries {
		if len(entry.vector) != len(vector) {
			continue
		}
		distance := floats.Distance(entry.vector, vector, 2)
		if bestDistance < 0 || distance < bestDistance {
			bestDistance = distance
			if distance <= g.tolerance {
				bestName = entry.name
			} else {
				bestName = UnknownName
			}
		}
	}
	if bestDistance < 0 {
		return UnknownName, 0.0
	}

	confidence := 1.0 - bestDistance
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return bestName, confidence
}

// LoadGallery encodes every reference image in dir and returns the resulting
// gallery. The person's name is the file stem, overridable through an optional
// names.yaml manifest mapping stems to display names. A missing directory is
// created and yields an empty gallery.
func LoadGallery(ctx context.Context, encoder Encoder, dir string, tolerance float64, logger *zap.Logger) (*Gallery, error) {
	gallery := NewGallery(tolerance)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		logger.Info("created empty known faces directory", zap.String("dir", dir))
		return gallery, nil
	}

	displayNames := loadNameManifest(filepath.Join(dir, "names.yaml"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("skipping unreadable reference image",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		encodings, err := encoder.Encode(ctx, data)
		if err != nil {
			logger.Warn("skipping reference image, encoder failed",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if len(encodings) == 0 {
			logger.Warn("no face found in reference image", zap.String("file", entry.Name()))
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), ext)
		name := stem
		if display, ok := displayNames[stem]; ok && display != "" {
			name = display
		}
		gallery.Add(name, encodings[0].Vector)
		logger.Info("loaded reference face", zap.String("name", name))
	}

	logger.Info("face gallery ready", zap.Int("entries", gallery.Len()))
	return gallery, nil
}

func loadNameManifest(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	names := map[string]string{}
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil
	}
	return names
}
