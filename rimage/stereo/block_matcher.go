package stereo

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/utils"
)

// MatchParams configure block matching. Disparities are searched in
// [MinDisparity, MinDisparity+NumDisparities).
type MatchParams struct {
	MinDisparity   int `json:"min_disparity"`
	NumDisparities int `json:"num_disparities"`
	// BlockSize is the odd side of the square matching window. It is clamped to the image.
	BlockSize int `json:"block_size"`
	// PreFilterSize is the odd side of the window used to normalize intensities.
	PreFilterSize int `json:"prefilter_size"`
	// PreFilterCap clips normalized intensities to [-cap, cap].
	PreFilterCap int `json:"prefilter_cap"`
	// TextureThreshold rejects windows whose summed prefiltered contrast is below it. 0 disables.
	TextureThreshold int `json:"texture_threshold"`
	// UniquenessRatio rejects matches whose cost is within this percentage of another
	// disparity's. 0 disables.
	UniquenessRatio int `json:"uniqueness_ratio"`
	// SpeckleWindowSize is the largest region of similar disparities treated as noise. 0 disables.
	SpeckleWindowSize int `json:"speckle_window_size"`
	// SpeckleRange is the largest disparity step, in pixels, within one region.
	SpeckleRange int `json:"speckle_range"`
}

// DefaultMatchParams is the profile used for inspecting rectified pairs: 64 disparities from 0, a
// 65 pixel window, a 5 pixel prefilter capped at 10, no texture threshold, 5% uniqueness and no
// speckle filtering.
func DefaultMatchParams() MatchParams {
	return MatchParams{
		MinDisparity:     0,
		NumDisparities:   64,
		BlockSize:        65,
		PreFilterSize:    5,
		PreFilterCap:     10,
		TextureThreshold: 0,
		UniquenessRatio:  5,
	}
}

// disparityLimit bounds the disparities a DisparityMap can hold, including its invalid value.
const disparityLimit = math.MaxInt16 / DisparityScale

// Validate checks the parameters independently of any image size.
func (p MatchParams) Validate() error {
	if p.NumDisparities <= 0 {
		return errors.Errorf("num_disparities must be positive, got %d", p.NumDisparities)
	}
	if p.MinDisparity < -disparityLimit || p.MinDisparity > disparityLimit ||
		p.NumDisparities > disparityLimit-p.MinDisparity {
		return errors.Errorf("disparities must stay within [%d, %d], got min_disparity %d and num_disparities %d",
			-disparityLimit, disparityLimit, p.MinDisparity, p.NumDisparities)
	}
	if p.BlockSize < 5 || p.BlockSize%2 == 0 {
		return errors.Errorf("block_size must be odd and at least 5, got %d", p.BlockSize)
	}
	if p.PreFilterSize < 5 || p.PreFilterSize > 255 || p.PreFilterSize%2 == 0 {
		return errors.Errorf("prefilter_size must be odd and within [5, 255], got %d", p.PreFilterSize)
	}
	if p.PreFilterCap < 1 || p.PreFilterCap > 63 {
		return errors.Errorf("prefilter_cap must be within [1, 63], got %d", p.PreFilterCap)
	}
	if p.TextureThreshold < 0 || p.UniquenessRatio < 0 || p.SpeckleWindowSize < 0 || p.SpeckleRange < 0 {
		return errors.New("thresholds must not be negative")
	}
	return nil
}

// BlockMatcher finds, for each pixel of the left image, the horizontal shift of the best matching
// window in the right image by sum of absolute differences over prefiltered intensities.
type BlockMatcher struct {
	logger logging.Logger
}

// NewBlockMatcher returns a BlockMatcher.
func NewBlockMatcher(logger logging.Logger) *BlockMatcher {
	return &BlockMatcher{logger: logger}
}

// Match computes the disparity of left against right. Both images must have the same size. The
// window is shrunk to the largest odd size that fits the image.
func (bm *BlockMatcher) Match(left, right *image.Gray, params MatchParams) (*DisparityMap, error) {
	lb, rb := left.Bounds(), right.Bounds()
	if lb.Size() != rb.Size() {
		return nil, errors.Errorf("image sizes differ: %v vs %v", lb.Size(), rb.Size())
	}
	w, h := lb.Dx(), lb.Dy()
	if limit := min(w, h); params.BlockSize > limit {
		params.BlockSize = limit
		if params.BlockSize%2 == 0 {
			params.BlockSize--
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	lf := prefilter(left, params.PreFilterSize, params.PreFilterCap)
	rf := prefilter(right, params.PreFilterSize, params.PreFilterCap)
	m := &matcher{
		w: w, h: h,
		left: lf, right: rf,
		radius:  params.BlockSize / 2,
		minD:    params.MinDisparity,
		maxD:    params.MinDisparity + params.NumDisparities - 1,
		diff:    make([]int32, w*h),
		sums:    make([]int64, (w+1)*(h+1)),
		cost:    make([]int32, w*h),
		prevBuf: make([]int32, w*h),
	}
	dm := m.run(params)
	if params.SpeckleWindowSize > 0 {
		filterSpeckles(dm, params.SpeckleWindowSize, params.SpeckleRange*DisparityScale)
	}
	if bm.logger != nil {
		bm.logger.Debugw("disparity computed",
			"width", w, "height", h, "block_size", params.BlockSize, "valid", dm.ValidCount())
	}
	return dm, nil
}

// prefilter replaces each pixel with its difference from the mean of its window, clipped to
// [-cap, cap] and shifted to [0, 2*cap].
func prefilter(img *image.Gray, size, prefilterCap int) []int32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := func(x, y int) int64 {
		return int64(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}
	sums := integral(w, h, pix)
	out := make([]int32, w*h)
	r := size / 2
	utils.ParallelForEachRow(h, func(y int) {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			n := int64((y1 - y0) * (x1 - x0))
			sum := boxSum(sums, w, x0, y0, x1, y1)
			v := pix(x, y) * n
			val := int32(math.Round(float64(v-sum) / float64(n)))
			if val < int32(-prefilterCap) {
				val = int32(-prefilterCap)
			}
			if val > int32(prefilterCap) {
				val = int32(prefilterCap)
			}
			out[y*w+x] = val + int32(prefilterCap)
		}
	})
	return out
}

// integral returns the (w+1)x(h+1) summed area table of f.
func integral(w, h int, f func(x, y int) int64) []int64 {
	sums := make([]int64, (w+1)*(h+1))
	fillIntegral(sums, w, h, f)
	return sums
}

func fillIntegral(sums []int64, w, h int, f func(x, y int) int64) {
	stride := w + 1
	for x := 0; x <= w; x++ {
		sums[x] = 0
	}
	for y := 0; y < h; y++ {
		var row int64
		sums[(y+1)*stride] = 0
		for x := 0; x < w; x++ {
			row += f(x, y)
			sums[(y+1)*stride+x+1] = sums[y*stride+x+1] + row
		}
	}
}

// boxSum returns the sum over [x0, x1) x [y0, y1).
func boxSum(sums []int64, w, x0, y0, x1, y1 int) int64 {
	stride := w + 1
	return sums[y1*stride+x1] - sums[y0*stride+x1] - sums[y1*stride+x0] + sums[y0*stride+x0]
}

type matcher struct {
	w, h        int
	left, right []int32
	radius      int
	minD, maxD  int

	diff    []int32
	sums    []int64
	cost    []int32
	prevBuf []int32
}

// validColumns returns the columns whose window fits both images for every disparity.
func (m *matcher) validColumns() (int, int) {
	lo := m.radius + max(m.maxD, 0)
	hi := m.w - m.radius - 1 + min(m.minD, 0)
	return lo, hi
}

// sad fills m.cost with the window cost of disparity d over the valid region.
func (m *matcher) sad(d int) {
	w := m.w
	utils.ParallelForEachRow(m.h, func(y int) {
		for x := 0; x < w; x++ {
			xr := x - d
			if xr < 0 || xr >= w {
				m.diff[y*w+x] = 0
				continue
			}
			v := m.left[y*w+x] - m.right[y*w+xr]
			if v < 0 {
				v = -v
			}
			m.diff[y*w+x] = v
		}
	})
	fillIntegral(m.sums, w, m.h, func(x, y int) int64 { return int64(m.diff[y*w+x]) })
	lo, hi := m.validColumns()
	r := m.radius
	utils.ParallelForEachRow(m.h, func(y int) {
		if y < r || y >= m.h-r {
			return
		}
		for x := lo; x <= hi; x++ {
			m.cost[y*w+x] = int32(boxSum(m.sums, w, x-r, y-r, x+r+1, y+r+1))
		}
	})
}

func (m *matcher) run(params MatchParams) *DisparityMap {
	dm := NewDisparityMap(m.w, m.h, params.MinDisparity)
	lo, hi := m.validColumns()
	r := m.radius
	if lo > hi || 2*r >= m.h {
		return dm
	}
	n := m.w * m.h
	best := make([]int32, n)
	bestD := make([]int32, n)
	before := make([]int32, n)
	after := make([]int32, n)
	for i := range best {
		best[i] = math.MaxInt32
		before[i] = -1
		after[i] = -1
	}
	inside := func(fn func(i int)) {
		for y := r; y < m.h-r; y++ {
			for x := lo; x <= hi; x++ {
				fn(y*m.w + x)
			}
		}
	}

	for d := m.minD; d <= m.maxD; d++ {
		m.sad(d)
		first := d == m.minD
		inside(func(i int) {
			c := m.cost[i]
			if !first && bestD[i] == int32(d-1) {
				after[i] = c
			}
			if c < best[i] {
				best[i] = c
				bestD[i] = int32(d)
				after[i] = -1
				before[i] = -1
				if !first {
					before[i] = m.prevBuf[i]
				}
			}
		})
		m.cost, m.prevBuf = m.prevBuf, m.cost
	}

	valid := make([]bool, n)
	inside(func(i int) { valid[i] = true })

	if params.TextureThreshold > 0 {
		capVal := int64(params.PreFilterCap)
		tex := integral(m.w, m.h, func(x, y int) int64 {
			v := int64(m.left[y*m.w+x]) - capVal
			if v < 0 {
				v = -v
			}
			return v
		})
		inside(func(i int) {
			x, y := i%m.w, i/m.w
			if boxSum(tex, m.w, x-r, y-r, x+r+1, y+r+1) < int64(params.TextureThreshold) {
				valid[i] = false
			}
		})
	}

	if params.UniquenessRatio > 0 {
		for d := m.minD; d <= m.maxD; d++ {
			m.sad(d)
			inside(func(i int) {
				if !valid[i] {
					return
				}
				bd := int(bestD[i])
				if d >= bd-1 && d <= bd+1 {
					return
				}
				thresh := int64(best[i]) + int64(best[i])*int64(params.UniquenessRatio)/100
				if int64(m.cost[i]) <= thresh {
					valid[i] = false
				}
			})
		}
	}

	inside(func(i int) {
		if !valid[i] {
			return
		}
		disp := float64(bestD[i])
		if p, q := after[i], before[i]; p >= 0 && q >= 0 {
			c := best[i]
			den := float64(p + q - 2*c + abs32(p-q))
			if den != 0 {
				disp += float64(q-p) / den
			}
		}
		dm.Data[i] = int16(math.Round(disp * DisparityScale))
	})
	return dm
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
