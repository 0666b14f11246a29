package detect

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"datacleaner/internal/config"
)

func cluster(row, col, scale, n int) []pigo.Detection {
	out := make([]pigo.Detection, 0, n)
	for i := 0; i < n; i++ {
		// jitter by a pixel so the windows overlap without being identical
		out = append(out, pigo.Detection{Row: row + i%2, Col: col + i%3, Scale: scale, Q: 3})
	}
	return out
}

func TestGroupDetectionsRequiresNeighbors(t *testing.T) {
	raw := append(cluster(50, 50, 40, 5), cluster(200, 200, 40, 4)...)

	got := groupDetections(raw, 5, 0.2)
	require.Len(t, got, 1)
	require.InDelta(t, 30, got[0].x1, 2)
	require.InDelta(t, 30, got[0].y1, 2)
	require.Equal(t, 40, got[0].x2-got[0].x1)
}

func TestGroupDetectionsRowMajorOrder(t *testing.T) {
	var raw []pigo.Detection
	raw = append(raw, cluster(300, 40, 40, 5)...) // lower left
	raw = append(raw, cluster(60, 400, 40, 5)...) // upper right
	raw = append(raw, cluster(60, 120, 40, 5)...) // upper left

	got := groupDetections(raw, 5, 0.2)
	require.Len(t, got, 3)
	require.Less(t, got[0].x1, got[1].x1)
	require.Equal(t, got[0].y1, got[1].y1)
	require.Greater(t, got[2].y1, got[1].y1)
}

func TestGroupDetectionsEmpty(t *testing.T) {
	require.Nil(t, groupDetections(nil, 5, 0.2))
}

func TestIoU(t *testing.T) {
	a := box{0, 0, 10, 10}
	require.Equal(t, 1.0, iou(a, a))
	require.Equal(t, 0.0, iou(a, box{20, 20, 30, 30}))
	require.InDelta(t, 25.0/175.0, iou(a, box{5, 5, 15, 15}), 1e-9)
}

func testParams() Params {
	return Params{ScaleFactor: 1.3, MinNeighbors: 5, MinSize: 24, ShiftFactor: 0.1, IoUThreshold: 0.2}
}

func TestNewUsesEmbeddedCascade(t *testing.T) {
	d := New(config.DetectorConfig{
		ScaleFactor:  1.3,
		MinNeighbors: 5,
		MinSize:      24,
		ShiftFactor:  0.1,
		IoUThreshold: 0.2,
	}, zerolog.Nop())
	require.Equal(t, "cascade", d.Name())
}

func TestNewFailsOpen(t *testing.T) {
	// a scale factor of zero cannot drive the cascade
	d := New(config.DetectorConfig{}, zerolog.Nop())
	require.IsType(t, Disabled{}, d)

	d = New(config.DetectorConfig{
		CascadePath: filepath.Join(t.TempDir(), "missing"),
		ScaleFactor: 1.3,
	}, zerolog.Nop())
	require.Equal(t, "disabled", d.Name())

	bad := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(bad, []byte("not a cascade"), 0o600))
	d = New(config.DetectorConfig{CascadePath: bad, ScaleFactor: 1.3}, zerolog.Nop())
	require.Equal(t, "disabled", d.Name())

	regions, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 64, 64)))
	require.NoError(t, err)
	require.Empty(t, regions)
}

func TestCascadeDetectorFindsFace(t *testing.T) {
	d, err := NewCascadeDetector(defaultCascade, testParams())
	require.NoError(t, err)

	img, err := imaging.Open(filepath.Join("testdata", "face.jpg"))
	require.NoError(t, err)
	bounds := img.Bounds()

	regions, err := d.Detect(img)
	require.NoError(t, err)
	require.NotEmpty(t, regions)
	for _, r := range regions {
		require.Equal(t, ClassFace, r.Class)
		require.Equal(t, 0.9, r.Confidence)
		x1, y1, x2, y2 := r.Bounds()
		require.Less(t, x1, x2)
		require.Less(t, y1, y2)
		require.True(t, image.Rect(x1, y1, x2, y2).Overlaps(bounds))
	}
}

func TestCascadeDetectorIsDeterministicAndRowMajor(t *testing.T) {
	d, err := NewCascadeDetector(defaultCascade, testParams())
	require.NoError(t, err)

	img, err := imaging.Open(filepath.Join("testdata", "face.jpg"))
	require.NoError(t, err)

	first, err := d.Detect(img)
	require.NoError(t, err)
	second, err := d.Detect(img)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.True(t, sort.SliceIsSorted(first, func(i, j int) bool {
		if first[i].BBox[1] != first[j].BBox[1] {
			return first[i].BBox[1] < first[j].BBox[1]
		}
		return first[i].BBox[0] < first[j].BBox[0]
	}))
}

func TestNewCascadeDetectorRejectsGarbage(t *testing.T) {
	_, err := NewCascadeDetector([]byte{0x01, 0x02}, Params{ScaleFactor: 1.3})
	require.Error(t, err)
}
