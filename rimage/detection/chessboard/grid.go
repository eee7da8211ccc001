package chessboard

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereocal/rimage/transform"
)

// matchTolerance is the largest distance, as a fraction of the local grid spacing, between a
// predicted grid position and the saddle point assigned to it.
const matchTolerance = 0.3

// ChessGrid is a set of points ordered as the inner corners of a chessboard, row by row.
type ChessGrid struct {
	Pattern image.Point
	Corners []r2.Point
	// H maps grid coordinates (column, row) to pixels.
	H *transform.Homography
}

// convexHull returns the hull of pts in counter-clockwise order without collinear points.
func convexHull(pts []r2.Point) []r2.Point {
	if len(pts) < 3 {
		return append([]r2.Point(nil), pts...)
	}
	sorted := append([]r2.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	cross := func(o, a, b r2.Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}
	hull := make([]r2.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// polygonArea returns the unsigned area of a polygon.
func polygonArea(pts ...r2.Point) float64 {
	area := 0.
	for i, p := range pts {
		area += p.Cross(pts[(i+1)%len(pts)])
	}
	return math.Abs(area) / 2
}

// outerQuad returns the four hull vertices spanning the largest area, in hull order.
func outerQuad(hull []r2.Point) ([4]r2.Point, error) {
	var best [4]r2.Point
	if len(hull) < 4 {
		return best, errors.New("fewer than four hull vertices")
	}
	bestArea := -1.
	n := len(hull)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				for l := k + 1; l < n; l++ {
					if a := polygonArea(hull[i], hull[j], hull[k], hull[l]); a > bestArea {
						bestArea = a
						best = [4]r2.Point{hull[i], hull[j], hull[k], hull[l]}
					}
				}
			}
		}
	}
	return best, nil
}

// orderGrid arranges exactly pattern.X*pattern.Y points into a chessboard grid. The first corner
// is the quad corner closest to the image origin and rows run along the side holding pattern.X
// points. Fails when the points do not form such a grid.
func orderGrid(points []r2.Point, pattern image.Point) (*ChessGrid, error) {
	nx, ny := pattern.X, pattern.Y
	if len(points) != nx*ny {
		return nil, errors.Errorf("expected %d points, got %d", nx*ny, len(points))
	}
	quad, err := outerQuad(convexHull(points))
	if err != nil {
		return nil, err
	}
	start := 0
	for i := range quad {
		if quad[i].X+quad[i].Y < quad[start].X+quad[start].Y {
			start = i
		}
	}
	origin := quad[start]
	next := quad[(start+1)%4]
	opposite := quad[(start+2)%4]
	prev := quad[(start+3)%4]

	var candidates []*ChessGrid
	for _, xEnd := range []r2.Point{next, prev} {
		yEnd := prev
		if xEnd == prev {
			yEnd = next
		}
		grid, err := fitGrid(points, pattern, [4]r2.Point{origin, xEnd, opposite, yEnd})
		if err == nil {
			candidates = append(candidates, grid)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, errors.New("points do not form a chessboard grid")
	case 1:
		return candidates[0], nil
	default:
		// square patterns match both ways; rows run along the more horizontal side
		a := candidates[0].Corners[nx-1].Sub(candidates[0].Corners[0])
		b := candidates[1].Corners[nx-1].Sub(candidates[1].Corners[0])
		if math.Abs(b.X)-math.Abs(b.Y) > math.Abs(a.X)-math.Abs(a.Y) {
			return candidates[1], nil
		}
		return candidates[0], nil
	}
}

// fitGrid assigns every grid position to its nearest point under the homography defined by the
// four outer corners, given in the order (0, 0), (nx-1, 0), (nx-1, ny-1), (0, ny-1).
func fitGrid(points []r2.Point, pattern image.Point, quad [4]r2.Point) (*ChessGrid, error) {
	nx, ny := pattern.X, pattern.Y
	gridQuad := []r2.Point{{X: 0, Y: 0}, {X: float64(nx - 1), Y: 0}, {X: float64(nx - 1), Y: float64(ny - 1)}, {X: 0, Y: float64(ny - 1)}}
	h, err := transform.EstimateHomography(gridQuad, quad[:])
	if err != nil {
		return nil, err
	}
	used := make([]bool, len(points))
	corners := make([]r2.Point, 0, nx*ny)
	for r := 0; r < ny; r++ {
		for c := 0; c < nx; c++ {
			g := r2.Point{X: float64(c), Y: float64(r)}
			pred := h.Apply(g)
			spacing := math.Min(
				h.Apply(g.Add(r2.Point{X: 1})).Sub(pred).Norm(),
				h.Apply(g.Add(r2.Point{Y: 1})).Sub(pred).Norm(),
			)
			bestIdx, bestDist := -1, math.Inf(1)
			for i, p := range points {
				if d := p.Sub(pred).Norm(); d < bestDist {
					bestIdx, bestDist = i, d
				}
			}
			if bestIdx < 0 || used[bestIdx] || bestDist > matchTolerance*spacing {
				return nil, errors.Errorf("no point near grid position (%d, %d)", c, r)
			}
			used[bestIdx] = true
			corners = append(corners, points[bestIdx])
		}
	}
	grid := make([]r2.Point, 0, nx*ny)
	for r := 0; r < ny; r++ {
		for c := 0; c < nx; c++ {
			grid = append(grid, r2.Point{X: float64(c), Y: float64(r)})
		}
	}
	refined, err := transform.EstimateHomography(grid, corners)
	if err != nil {
		return nil, err
	}
	return &ChessGrid{Pattern: pattern, Corners: corners, H: refined}, nil
}
