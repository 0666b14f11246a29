package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"datacleaner/internal/detect"
	"datacleaner/internal/media/sniffer"
	"datacleaner/internal/models"
	"datacleaner/internal/redact"
)

var errTooManyPixels = errors.New("image dimensions too large")

type analysis struct {
	regions []models.DetectedRegion
	// derived is the encoded redacted image, nil when nothing was redacted.
	derived []byte
}

// analyze decodes data, detects regions and, if any region was blurred,
// encodes the result in the format implied by name. Images above maxPixels
// are refused before their pixels are allocated. Every failure is a
// *StageError.
func analyze(detector detect.Detector, data []byte, name string, kind sniffer.Result, maxPixels int64) (analysis, error) {
	if !kind.Raster() {
		format := string(kind.Type)
		if format == "" {
			format = "unrecognized"
		}
		return analysis{}, &StageError{Stage: StageDecode, Err: fmt.Errorf("cannot decode %s content", format)}
	}

	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return analysis{}, &StageError{Stage: StageDecode, Err: err}
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > maxPixels {
		return analysis{}, &StageError{Stage: StageDecode, Err: fmt.Errorf("%w: %dx%d exceeds %d pixels", errTooManyPixels, header.Width, header.Height, maxPixels)}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return analysis{}, &StageError{Stage: StageDecode, Err: err}
	}

	regions, err := runDetector(detector, img)
	if err != nil {
		return analysis{}, &StageError{Stage: StageDetect, Err: err}
	}
	if len(regions) == 0 {
		return analysis{}, nil
	}

	out, applied, err := runRedactor(img, regions)
	if err != nil {
		return analysis{}, &StageError{Stage: StageRedact, Err: err}
	}
	if applied == 0 {
		return analysis{regions: regions}, nil
	}

	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		return analysis{}, &StageError{Stage: StageEncode, Err: err}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(90)); err != nil {
		return analysis{}, &StageError{Stage: StageEncode, Err: err}
	}

	return analysis{regions: regions, derived: buf.Bytes()}, nil
}

func runDetector(detector detect.Detector, img image.Image) (regions []models.DetectedRegion, err error) {
	defer func() {
		if r := recover(); r != nil {
			regions, err = nil, fmt.Errorf("detector %s panicked: %v", detector.Name(), r)
		}
	}()
	return detector.Detect(img)
}

func runRedactor(img image.Image, regions []models.DetectedRegion) (out *image.NRGBA, applied int, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, applied, err = nil, 0, fmt.Errorf("redactor panicked: %v", r)
		}
	}()
	out, applied = redact.Apply(img, regions)
	return out, applied, nil
}
