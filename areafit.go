/*
Package areafit implements a 2D rectangle-packing search engine. Given a set
of axis-aligned areas, it assigns each a position within one of a set of
output images so that the summed area of the images is minimized, and
secondarily the number of images, subject to per-image width, height and
pixel-count limits.

The search is a budget-limited recursive exploration of free regions: it
returns the best fit discovered within the configured number of placement
attempts, not a guaranteed global optimum.
*/
package areafit

import (
	"slices"
	"sync"

	"k8s.io/klog/v2"
)

// FitAreas fits all areas into the smallest summed size of output images it
// can discover within the options' call budget.
//
// On success it returns the output images, the fit quality in percent and
// true; placements are written into the areas in place, and the slice is
// re-sorted by (image, x, y). Quality is 100 times the summed input area
// divided by the summed output size, so 100 means a perfectly tight packing.
//
// On failure it returns a nil image list and false; area placements are left
// meaningless. A failed call can be retried with a larger MinImageCount or a
// larger FitCallsLimit.
//
// The initial outImages may be empty. Preseeded images with nonzero
// dimensions fix those images' extents as the search's starting point.
func FitAreas(areas []FitArea, outImages []OutImage, opt Options) ([]OutImage, float64, bool) {
	fitted, quality, _, ok := FitAreasStats(areas, outImages, opt)
	return fitted, quality, ok
}

// FitAreasStats is FitAreas with search effort counters, for tests and for
// tuning call budgets.
func FitAreasStats(areas []FitArea, outImages []OutImage, opt Options) ([]OutImage, float64, Stats, bool) {
	opt = opt.withDefaults()

	for i := range areas {
		if areas[i].Width < 0 {
			areas[i].Width = 0
		}
		if areas[i].Height < 0 {
			areas[i].Height = 0
		}
	}

	if len(areas) < 2 {
		if len(areas) == 0 {
			return nil, 100.0, Stats{}, true
		}
		a := &areas[0]
		a.OutImage = 0
		a.OutX = 0
		a.OutY = 0
		out := []OutImage{{Width: a.Width, Height: a.Height, Size: a.Area()}}
		return out, 100.0, Stats{}, true
	}

	slices.SortStableFunc(areas, SortWidthDesc)

	// The minimal possible summed size is reached either in an optimally
	// tight packing or when every area sits in its own exact-sized image.
	minOutSize := 0
	maxSize := opt.MaxImageSize
	for i := range areas {
		size := areas[i].Area()
		if maxSize < size {
			maxSize = size
		}
		minOutSize += size
	}

	imageCount := opt.MinImageCount
	if imageCount < len(outImages) {
		imageCount = len(outImages)
	}

	g := newGlobals(opt.FitCallsLimit)

	workers := opt.Workers
	if workers > len(areas) {
		workers = len(areas)
	}

	if workers == 1 {
		f := newFitter(opt.MaxImageWidth, opt.MaxImageHeight, maxSize, g, areas)
		f.fd = newFitData(outImages, imageCount, opt.MaxImageWidth, opt.MaxImageHeight)
		f.pushRoot(0)
		f.fitUnfittedAreas()
	} else {
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			f := newFitter(opt.MaxImageWidth, opt.MaxImageHeight, maxSize, g, areas)
			f.fd = newFitData(outImages, imageCount, opt.MaxImageWidth, opt.MaxImageHeight)
			f.pushRoot(w)
			wg.Add(1)
			go func(f *fitter) {
				defer wg.Done()
				f.fitUnfittedAreas()
			}(f)
		}
		wg.Wait()
	}

	g.stats.CallsUsed = opt.FitCallsLimit - g.fitCallsLeft

	if !g.found {
		klog.V(2).Infof("areafit: no fit within %v call(s) for %v area(s)",
			opt.FitCallsLimit, len(areas))
		return nil, 0, g.stats, false
	}

	for i := range areas {
		a := &areas[i]
		p := g.bestFitted[i]
		a.OutImage = p.outImage
		a.OutX = p.outX
		a.OutY = p.outY
	}
	slices.SortStableFunc(areas, SortPlacement)

	fitted := slices.Clone(g.bestOutImages)

	quality := 100.0
	if g.bestOutSize > 0 {
		quality = 100.0 * float64(minOutSize) / float64(g.bestOutSize)
	}

	if klog.V(2).Enabled() {
		klog.Infof("areafit: fitted %v area(s), out size %v, quality %.2f%%",
			len(areas), g.bestOutSize, quality)
		for i := range fitted {
			klog.Infof(" image %v: %vx%v", i, fitted[i].Width, fitted[i].Height)
		}
	}
	return fitted, quality, g.stats, true
}

// vim: ts=4
