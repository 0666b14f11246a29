// Package detect locates objects to redact in decoded images.
package detect

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/rs/zerolog"

	"datacleaner/internal/config"
	"datacleaner/internal/models"
)

const (
	ClassFace = "face"

	// The cascade scores windows but does not produce a calibrated
	// probability, so every accepted face reports the same confidence.
	faceConfidence = 0.9
)

// Detector is safe for concurrent use once constructed.
type Detector interface {
	Detect(img image.Image) ([]models.DetectedRegion, error)
	Name() string
}

// Disabled is the fail-open variant used when no model could be loaded.
type Disabled struct{}

func (Disabled) Detect(image.Image) ([]models.DetectedRegion, error) { return nil, nil }

func (Disabled) Name() string { return "disabled" }

type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
	ShiftFactor  float64
	IoUThreshold float64
}

func ParamsFromConfig(cfg config.DetectorConfig) Params {
	return Params{
		ScaleFactor:  cfg.ScaleFactor,
		MinNeighbors: cfg.MinNeighbors,
		MinSize:      cfg.MinSize,
		ShiftFactor:  cfg.ShiftFactor,
		IoUThreshold: cfg.IoUThreshold,
	}
}

// CascadeDetector runs a pixel-comparison frontal face cascade.
type CascadeDetector struct {
	classifier *pigo.Pigo
	params     Params
}

func NewCascadeDetector(cascade []byte, params Params) (*CascadeDetector, error) {
	classifier, err := unpack(cascade)
	if err != nil {
		return nil, err
	}
	if params.ScaleFactor <= 1 {
		return nil, fmt.Errorf("scale factor must be greater than 1, got %v", params.ScaleFactor)
	}
	if params.MinNeighbors < 1 {
		params.MinNeighbors = 1
	}
	if params.MinSize < 1 {
		params.MinSize = 1
	}
	if params.ShiftFactor <= 0 {
		params.ShiftFactor = 0.1
	}
	return &CascadeDetector{classifier: classifier, params: params}, nil
}

// unpack turns the panics pigo raises on truncated input into errors.
func unpack(cascade []byte) (classifier *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			classifier, err = nil, fmt.Errorf("unpack cascade: malformed data: %v", r)
		}
	}()

	classifier, err = pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return classifier, nil
}

// New loads the cascade once: the file at cfg.CascadePath, or the embedded
// face cascade when no path is set. Any load failure degrades to Disabled so
// startup never depends on the model.
func New(cfg config.DetectorConfig, log zerolog.Logger) Detector {
	data, source := defaultCascade, "embedded"
	if cfg.CascadePath != "" {
		var err error
		data, err = os.ReadFile(cfg.CascadePath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.CascadePath).Msg("read cascade failed, detection disabled")
			return Disabled{}
		}
		source = cfg.CascadePath
	}

	detector, err := NewCascadeDetector(data, ParamsFromConfig(cfg))
	if err != nil {
		log.Warn().Err(err).Str("cascade", source).Msg("load cascade failed, detection disabled")
		return Disabled{}
	}

	log.Info().Str("cascade", source).Msg("face cascade loaded")
	return detector
}

func (d *CascadeDetector) Name() string { return "cascade" }

// Detect returns faces ordered row-major by their top-left corner.
func (d *CascadeDetector) Detect(img image.Image) ([]models.DetectedRegion, error) {
	// Clone rebases the image at the origin, which the cascade expects.
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return nil, fmt.Errorf("empty image %dx%d", cols, rows)
	}

	pixels := pigo.RgbToGrayscale(src)

	maxSize := cols
	if rows < maxSize {
		maxSize = rows
	}
	if maxSize < d.params.MinSize {
		return nil, nil
	}

	raw := d.classifier.RunCascade(pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}, 0.0)

	groups := groupDetections(raw, d.params.MinNeighbors, d.params.IoUThreshold)

	regions := make([]models.DetectedRegion, 0, len(groups))
	for _, g := range groups {
		regions = append(regions, models.DetectedRegion{
			Class:      ClassFace,
			Confidence: faceConfidence,
			BBox:       [4]int{g.x1, g.y1, g.x2, g.y2},
		})
	}
	return regions, nil
}
