package models

import (
	"strings"
	"time"
)

// DerivedPrefix marks an artifact produced from an original one. The original's
// name is the derived name with the prefix removed.
const DerivedPrefix = "processed_"

// DetectedRegion is one detection in pixel coordinates, with X1 < X2 and Y1 < Y2.
type DetectedRegion struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
}

func (r DetectedRegion) Bounds() (x1, y1, x2, y2 int) {
	return r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]
}

// Image is the persisted record of one successful upload. Processed and
// Regions are fixed at creation.
type Image struct {
	ID           int64
	UserID       int64
	Filename     string
	OriginalName string
	Processed    bool
	Regions      []DetectedRegion
	CreatedAt    time.Time
}

// SourceFilename returns the original artifact behind a derived one, or "".
func (i Image) SourceFilename() string {
	source, ok := strings.CutPrefix(i.Filename, DerivedPrefix)
	if !ok || source == "" {
		return ""
	}
	return source
}
