package alignment

import (
	"math"
	"math/rand"

	"laser-align/pkg/geometry"
)

// MinCorrespondences is the smallest sample that determines a homography.
const MinCorrespondences = 4

// Options configures robust homography estimation.
type Options struct {
	Threshold     float64 // Max reprojection distance in pixels for an inlier
	MaxIterations int     // Upper bound on RANSAC samples
	Confidence    float64 // Desired probability of drawing one outlier-free sample
	Seed          int64   // Seed for sampling, so runs are reproducible
}

// DefaultOptions returns the estimation settings used by the pipeline.
func DefaultOptions() Options {
	return Options{
		Threshold:     5.0,
		MaxIterations: 2000,
		Confidence:    0.995,
		Seed:          1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = d.Confidence
	}
	return o
}

// Estimate is the outcome of a robust fit.
type Estimate struct {
	Homography      geometry.Homography // mm -> px
	Correspondences []Correspondence
	Inliers         []bool  // parallel to Correspondences
	MeanError       float64 // mean inlier reprojection error in pixels
	Iterations      int
}

// InlierCount returns how many correspondences agree with the homography.
func (e *Estimate) InlierCount() int {
	n := 0
	for _, in := range e.Inliers {
		if in {
			n++
		}
	}
	return n
}

// TrustedMarkers returns the ids of inlier markers.
func (e *Estimate) TrustedMarkers() []int {
	return e.markers(true)
}

// RejectedMarkers returns the ids of markers RANSAC discarded.
func (e *Estimate) RejectedMarkers() []int {
	return e.markers(false)
}

func (e *Estimate) markers(inlier bool) []int {
	var ids []int
	for i, c := range e.Correspondences {
		if e.Inliers[i] == inlier {
			ids = append(ids, c.MarkerID)
		}
	}
	return ids
}

// Estimator fits a mm -> px homography robust to mis-detected markers.
type Estimator struct {
	Solver  Solver
	Options Options
}

// NewEstimator creates an estimator using the DLT solver.
func NewEstimator(opts Options) *Estimator {
	return &Estimator{Solver: DLTSolver{}, Options: opts}
}

type candidate struct {
	h       geometry.Homography
	inliers []bool
	count   int
	errSum  float64
}

// Estimate runs RANSAC over the correspondences and refits the best
// hypothesis on all of its inliers. When every 4-subset fits within the
// iteration budget they are all tried, which makes small marker counts
// deterministic.
func (e *Estimator) Estimate(corrs []Correspondence) (*Estimate, error) {
	n := len(corrs)
	if n < MinCorrespondences {
		return nil, &InsufficientMarkersError{Found: n, Required: MinCorrespondences}
	}
	opts := e.Options.withDefaults()
	solver := e.Solver
	if solver == nil {
		solver = DLTSolver{}
	}

	src, dst := splitCorrespondences(corrs)
	var best *candidate

	try := func(idx []int) {
		if !goodSample(src, dst, idx) {
			return
		}
		sampleSrc := make([]geometry.Point2D, len(idx))
		sampleDst := make([]geometry.Point2D, len(idx))
		for i, j := range idx {
			sampleSrc[i] = src[j]
			sampleDst[i] = dst[j]
		}
		h, err := solver.Solve(sampleSrc, sampleDst)
		if err != nil || h.IsDegenerate() {
			return
		}
		c := score(h, src, dst, opts.Threshold)
		if best == nil || c.count > best.count || (c.count == best.count && c.errSum < best.errSum) {
			best = c
		}
	}

	iterations := 0
	if subsets := binomial(n, MinCorrespondences); subsets <= opts.MaxIterations {
		forEachSubset(n, MinCorrespondences, func(idx []int) {
			iterations++
			try(idx)
		})
	} else {
		rng := rand.New(rand.NewSource(opts.Seed))
		limit := opts.MaxIterations
		for iterations < limit {
			iterations++
			prev := best
			try(rng.Perm(n)[:MinCorrespondences])
			if best != prev {
				if k := adaptiveIterations(opts.Confidence, best.count, n, opts.MaxIterations); k < limit {
					limit = k
				}
			}
		}
	}

	if best == nil || best.count < MinCorrespondences {
		return nil, &DegenerateGeometryError{Reason: "no four markers define an invertible homography"}
	}

	// Refit on every inlier; keep the sample hypothesis if that fails.
	var inSrc, inDst []geometry.Point2D
	for i, in := range best.inliers {
		if in {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	final := best
	if h, err := solver.Solve(inSrc, inDst); err == nil && !h.IsDegenerate() {
		if c := score(h, src, dst, opts.Threshold); c.count >= best.count {
			final = c
		}
	}
	if final.h.IsDegenerate() {
		return nil, &DegenerateGeometryError{Reason: "fitted homography is singular"}
	}

	return &Estimate{
		Homography:      final.h,
		Correspondences: corrs,
		Inliers:         final.inliers,
		MeanError:       final.errSum / float64(final.count),
		Iterations:      iterations,
	}, nil
}

// score counts inliers of h and sums their reprojection error.
func score(h geometry.Homography, src, dst []geometry.Point2D, threshold float64) *candidate {
	c := &candidate{h: h, inliers: make([]bool, len(src))}
	for i := range src {
		d := h.Apply(src[i]).Distance(dst[i])
		if d < threshold {
			c.inliers[i] = true
			c.count++
			c.errSum += d
		}
	}
	return c
}

// goodSample rejects samples containing a collinear triple on either side,
// and samples whose triangles change orientation between the two planes. A
// homography of points in front of the camera cannot mirror some triangles
// but not others.
func goodSample(src, dst []geometry.Point2D, idx []int) bool {
	sign := 0
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			for c := b + 1; c < len(idx); c++ {
				i, j, k := idx[a], idx[b], idx[c]
				if geometry.Collinear(src[i], src[j], src[k]) || geometry.Collinear(dst[i], dst[j], dst[k]) {
					return false
				}
				s := geometry.Orientation(src[i], src[j], src[k]) * geometry.Orientation(dst[i], dst[j], dst[k])
				if sign == 0 {
					sign = s
				} else if s != sign {
					return false
				}
			}
		}
	}
	return true
}

// adaptiveIterations returns the number of samples needed to draw an
// all-inlier sample with the given confidence.
func adaptiveIterations(confidence float64, inliers, n, maxIterations int) int {
	w := float64(inliers) / float64(n)
	p := math.Pow(w, MinCorrespondences)
	if p >= 1 {
		return 1
	}
	if p <= 0 {
		return maxIterations
	}
	k := math.Log(1-confidence) / math.Log(1-p)
	if math.IsNaN(k) || math.IsInf(k, 0) || k > float64(maxIterations) {
		return maxIterations
	}
	return int(math.Ceil(k))
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
		if r > math.MaxInt32 {
			return math.MaxInt32
		}
	}
	return r
}

// forEachSubset calls fn with every k-subset of [0, n) in lexicographic order.
// fn must not retain idx.
func forEachSubset(n, k int, fn func(idx []int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		fn(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
