package detect

import (
	"sort"

	pigo "github.com/esimov/pigo/core"
)

type box struct {
	x1, y1, x2, y2 int
}

func (b box) area() int {
	return (b.x2 - b.x1) * (b.y2 - b.y1)
}

func boxOf(d pigo.Detection) box {
	half := d.Scale / 2
	return box{
		x1: d.Col - half,
		y1: d.Row - half,
		x2: d.Col - half + d.Scale,
		y2: d.Row - half + d.Scale,
	}
}

func iou(a, b box) float64 {
	ix1, iy1 := max(a.x1, b.x1), max(a.y1, b.y1)
	ix2, iy2 := min(a.x2, b.x2), min(a.y2, b.y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// groupDetections merges overlapping raw windows and keeps groups backed by at
// least minNeighbors windows. Each group becomes the average of its members.
// Output is sorted by top edge, then left edge.
func groupDetections(raw []pigo.Detection, minNeighbors int, threshold float64) []box {
	if len(raw) == 0 {
		return nil
	}

	boxes := make([]box, len(raw))
	for i, d := range raw {
		boxes[i] = boxOf(d)
	}

	parent := make([]int, len(boxes))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if iou(boxes[i], boxes[j]) > threshold {
				parent[find(j)] = find(i)
			}
		}
	}

	type acc struct {
		n              int
		x1, y1, x2, y2 int
	}
	sums := make(map[int]*acc)
	order := make([]int, 0)
	for i, b := range boxes {
		root := find(i)
		a, ok := sums[root]
		if !ok {
			a = &acc{}
			sums[root] = a
			order = append(order, root)
		}
		a.n++
		a.x1 += b.x1
		a.y1 += b.y1
		a.x2 += b.x2
		a.y2 += b.y2
	}

	out := make([]box, 0, len(order))
	for _, root := range order {
		a := sums[root]
		if a.n < minNeighbors {
			continue
		}
		b := box{x1: a.x1 / a.n, y1: a.y1 / a.n, x2: a.x2 / a.n, y2: a.y2 / a.n}
		if b.x2 <= b.x1 || b.y2 <= b.y1 {
			continue
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].y1 != out[j].y1 {
			return out[i].y1 < out[j].y1
		}
		return out[i].x1 < out[j].x1
	})
	return out
}
