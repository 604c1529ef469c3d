package areafit

import "k8s.io/klog/v2"

// fitCallSlice is the number of fit calls a fitter draws from the shared
// budget at a time, bounding lock traffic to one acquisition per slice.
const fitCallSlice = 512

// areaNode is a fitter-private copy of one input area, threaded into the
// unfitted-area chain. Indices into a fitter's node list correspond to
// indices into the sorted caller list.
type areaNode struct {
	width    int
	height   int
	outImage int
	outX     int
	outY     int
	// next is the following node in the unfitted chain, nil at the end.
	next *areaNode
}

// outArea is a free, axis-aligned sub-rectangle of one output image,
// available to receive a placement. Free regions of all images share a single
// chain kept ascending by height, so the first fitting region during a scan
// is the tightest in one dimension. Regions may overlap one another; the
// overlap is resolved by the split configurations as placements commit.
type outArea struct {
	outImage int
	x        int
	y        int
	width    int
	height   int
	next     *outArea
}

// resumeTag selects the continuation point of an evaluation frame once its
// child frame pops.
type resumeTag uint8

const (
	// resumeNone marks a frame that has not pushed a child.
	resumeNone resumeTag = iota
	// resumeFirstConfig resumes after the first split configuration.
	resumeFirstConfig
	// resumeSecondConfig resumes after the second split configuration.
	resumeSecondConfig
)

// evalFrame holds the state of one logical recursion level of the search. A
// push replaces a recursive call, a pop replaces a return, and resume records
// which continuation runs when the child pops.
type evalFrame struct {
	resume resumeTag
	// area is the unfitted area the frame is evaluating, prevArea its
	// predecessor in the unfitted chain.
	area     *areaNode
	prevArea *areaNode
	// newOutAreas stores the transient regions created by this frame: two
	// split children, and at index 2 the region backing a new output image.
	newOutAreas [3]outArea
	// prevNewOutAreas are the chain predecessors of the inserted children,
	// kept for O(1) unlinking when a configuration unwinds.
	prevNewOutAreas [2]*outArea
	// outArea is the free region under trial, prevOutArea its predecessor.
	outArea     *outArea
	prevOutArea *outArea
	// outAreasTried counts regions where a legal placement attempt happened.
	outAreasTried int
	// remainRight and remainBottom are the region extents left over after
	// placing the area at its top-left corner.
	remainRight  int
	remainBottom int
	// wasImageAdded marks that outArea backs a freshly synthesized output
	// image, unwound when the trial backtracks.
	wasImageAdded bool
	// doImageRestore marks that the trial grew the image and the saved
	// dimensions below must be restored.
	doImageRestore bool
	imageSave      OutImage
	outSizeSave    int
	// minAreaWidth and minAreaHeight are the smallest width and height among
	// the remaining unfitted areas; split children narrower or shorter than
	// these can never receive a placement and are discarded.
	minAreaWidth  int
	minAreaHeight int
	// c is the number of children inserted for the current configuration,
	// c1 the count the first configuration used.
	c  int
	c1 int
}

// fitData is the mutable state of one packing attempt: the free-region chain,
// the output images built so far and their summed size, and the fitter-local
// snapshot of the best bounds.
type fitData struct {
	// outAreas is the sentinel head of the free-region chain. Fields other
	// than next have no meaning in the sentinel.
	outAreas *outArea
	// baseOutAreas backs the sentinel and the seed region of every starting
	// output image.
	baseOutAreas []outArea
	// outImages holds the images created so far; only the first
	// outImageCount entries are live.
	outImages     []OutImage
	outImageCount int
	// outSize is the summed size of all live output images.
	outSize int
	// bestOutSize and bestOutImageCount are snapshots of the shared best
	// bounds. They may lag; the lag only costs extra exploration until the
	// next budget refill catches up.
	bestOutSize       int
	bestOutImageCount int
}

// newFitData seeds the free-region chain with one region per starting output
// image: the image's own extent when preseeded with nonzero dimensions, the
// width/height caps otherwise.
func newFitData(images []OutImage, imageCount, maxWidth, maxHeight int) *fitData {
	fd := &fitData{
		outImages:         make([]OutImage, imageCount),
		outImageCount:     imageCount,
		bestOutSize:       unbounded,
		bestOutImageCount: noBest,
	}
	copy(fd.outImages, images)

	fd.baseOutAreas = make([]outArea, imageCount+1)
	fd.outAreas = &fd.baseOutAreas[0]
	prev := fd.outAreas

	for i := 0; i < imageCount; i++ {
		im := &fd.outImages[i]
		if im.Width < 0 {
			im.Width = 0
		}
		if im.Height < 0 {
			im.Height = 0
		}
		im.Size = im.Width * im.Height
		fd.outSize += im.Size

		oa := &fd.baseOutAreas[i+1]
		prev.next = oa
		prev = oa

		oa.outImage = i
		oa.x = 0
		oa.y = 0
		oa.width = im.Width
		if oa.width == 0 {
			oa.width = maxWidth
		}
		oa.height = im.Height
		if oa.height == 0 {
			oa.height = maxHeight
		}
	}
	prev.next = nil
	return fd
}

// addOutImage appends a zero-sized output image slot.
func (fd *fitData) addOutImage() {
	if fd.outImageCount == len(fd.outImages) {
		fd.outImages = append(fd.outImages, OutImage{})
	} else {
		fd.outImages[fd.outImageCount] = OutImage{}
	}
	fd.outImageCount++
}

// insertOutArea inserts a free region into the chain at the first position
// whose existing height strictly exceeds the new region's height, keeping the
// chain ascending by height and stable for equal heights. The returned
// predecessor makes later removal O(1) without a second scan.
func (fd *fitData) insertOutArea(oa *outArea) *outArea {
	prev := fd.outAreas
	for scan := prev.next; scan != nil && scan.height <= oa.height; scan = scan.next {
		prev = scan
	}
	oa.next = prev.next
	prev.next = oa
	return prev
}

// checkAreaFitAgainstBest tests whether placing an area with its new
// bottom-right corner at (newWidth, newHeight) keeps the output image within
// the size cap and the summed output size below the best bound. On acceptance
// the grown dimensions and summed size are committed, with the previous
// values saved into the frame for restoration.
//
// The frame's outAreasTried counter is incremented on every outcome except
// the size-cap overflow: that rejection means the placement was infeasible
// here, not worse than the best, and the new-image branch keys off "no legal
// attempt happened".
func (fd *fitData) checkAreaFitAgainstBest(newWidth, newHeight, image, maxSize int, s *evalFrame) bool {
	im := &fd.outImages[image]
	doUpdateSize := false

	if newWidth > im.Width {
		doUpdateSize = true
	} else {
		newWidth = im.Width
	}
	if newHeight > im.Height {
		doUpdateSize = true
	} else {
		newHeight = im.Height
	}

	if doUpdateSize {
		newSize := newWidth * newHeight
		newOutSize := fd.outSize + newSize - im.Size

		if newSize > maxSize {
			return false
		}
		if newOutSize >= fd.bestOutSize {
			s.outAreasTried++
			return false
		}

		s.imageSave = *im
		s.outSizeSave = fd.outSize

		im.Width = newWidth
		im.Height = newHeight
		im.Size = newSize
		fd.outSize = newOutSize

		s.doImageRestore = true
	} else {
		s.doImageRestore = false
	}

	s.outAreasTried++
	return true
}

// fitter owns one packing search: the sorted area copies, the unfitted chain,
// the evaluation stack and the local slice of the call budget. Several
// fitters may run concurrently against one globals.
type fitter struct {
	maxWidth  int
	maxHeight int
	maxSize   int
	globals   *globals
	// callsLeft is the local portion of the shared budget, refilled in
	// fitCallSlice increments.
	callsLeft int
	// unfitted points at the sentinel head of the unfitted-area chain; the
	// chain holds exactly the areas not yet placed in the current state.
	unfitted *areaNode
	initArea areaNode
	areas    []areaNode
	fd       *fitData
	stack    []evalFrame
	depth    int
}

// newFitter copies the sorted areas into fitter-private nodes and threads the
// unfitted chain through them in order.
func newFitter(maxWidth, maxHeight, maxSize int, g *globals, sorted []FitArea) *fitter {
	f := &fitter{
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		maxSize:   maxSize,
		globals:   g,
		areas:     make([]areaNode, len(sorted)),
		stack:     make([]evalFrame, len(sorted)),
		depth:     -1,
	}

	f.unfitted = &f.initArea
	prev := f.unfitted
	for i := range sorted {
		n := &f.areas[i]
		n.width = sorted[i].Width
		n.height = sorted[i].Height
		prev.next = n
		prev = n
	}
	prev.next = nil
	return f
}

// push starts a new frame over the current unfitted chain.
func (f *fitter) push() {
	f.depth++
	s := &f.stack[f.depth]
	s.resume = resumeNone
	s.area = f.unfitted.next
	s.prevArea = f.unfitted
}

// pushRoot starts the root frame with its area scan rotated to begin at the
// root-th unfitted area, partitioning the root placements among workers.
func (f *fitter) pushRoot(root int) {
	f.push()
	s := &f.stack[f.depth]
	for i := 0; i < root && s.area != nil; i++ {
		s.prevArea = s.area
		s.area = s.area.next
	}
}

// stepResult is the outcome of driving one frame.
type stepResult uint8

const (
	// stepPushed means a child frame was pushed and runs next.
	stepPushed stepResult = iota
	// stepDone means the frame is exhausted and pops.
	stepDone
	// stepAbort means the shared budget ran dry; the search ends at once.
	stepAbort
)

// fitUnfittedAreas runs the packing search to completion. It drives the
// explicit frame stack: fresh frames walk the unfitted chain, frames whose
// child popped resume at the continuation their tag records.
func (f *fitter) fitUnfittedAreas() {
	for {
		s := &f.stack[f.depth]

		var res stepResult
		if s.resume == resumeNone {
			res = f.runFrame(s)
		} else {
			res = f.resumeFrame(s)
		}

		switch res {
		case stepPushed:
			// Drive the child next.
		case stepAbort:
			return
		case stepDone:
			if f.depth == 0 {
				f.flushCalls()
				return
			}
			f.depth--
		}
	}
}

// refillState is the outcome of drawing a budget slice.
type refillState uint8

const (
	refillOK refillState = iota
	// refillLagging means the shared best has moved past the local bounds;
	// the frame stops exploring with the refreshed bounds.
	refillLagging
	// refillExhausted means the shared budget is empty.
	refillExhausted
)

// refillCalls draws up to one slice of calls from the shared budget, syncing
// the local best bounds on the way.
func (f *fitter) refillCalls() refillState {
	fd := f.fd
	g := f.globals
	g.mu.Lock()
	defer g.mu.Unlock()

	if fd.bestOutSize > g.bestOutSize || fd.bestOutImageCount > g.bestOutImageCount {
		fd.bestOutSize = g.bestOutSize
		fd.bestOutImageCount = g.bestOutImageCount
		return refillLagging
	}
	if g.fitCallsLeft == 0 {
		return refillExhausted
	}
	if g.fitCallsLeft >= fitCallSlice {
		f.callsLeft = fitCallSlice
		g.fitCallsLeft -= fitCallSlice
	} else {
		f.callsLeft = g.fitCallsLeft
		g.fitCallsLeft = 0
	}
	return refillOK
}

// flushCalls returns any unused local budget to the shared pool.
func (f *fitter) flushCalls() {
	if f.callsLeft == 0 {
		return
	}
	g := f.globals
	g.mu.Lock()
	g.fitCallsLeft += f.callsLeft
	g.mu.Unlock()
	f.callsLeft = 0
}

// runFrame walks the frame's unfitted chain from its current position, trying
// every free region for each area in turn.
func (f *fitter) runFrame(s *evalFrame) stepResult {
	fd := f.fd

	for s.area != nil {
		if fd.outSize >= fd.bestOutSize || fd.outImageCount > fd.bestOutImageCount {
			break
		}
		if f.callsLeft == 0 {
			switch f.refillCalls() {
			case refillLagging:
				return stepDone
			case refillExhausted:
				return stepAbort
			}
		}
		f.callsLeft--

		// Detach the area while its placements are trialed; the predecessor
		// keeps the splice O(1).
		area := s.area
		s.prevArea.next = area.next

		s.prevOutArea = fd.outAreas
		s.outAreasTried = 0

		res, scanDone := f.scanRegions(s, fd.outAreas.next)
		if !scanDone {
			return res
		}

		// Restore the area so the parent frame sees the original chain.
		s.prevArea.next = area
		s.prevArea = area
		s.area = area.next
	}
	return stepDone
}

// scanRegions walks the free-region chain trying to place s.area, starting at
// oa. It returns scanDone=false when a child frame was pushed mid-scan, and
// scanDone=true once every viable region (including a possible synthesized
// image) has been tried.
func (f *fitter) scanRegions(s *evalFrame, oa *outArea) (res stepResult, scanDone bool) {
	fd := f.fd
	area := s.area

	for {
		if oa == nil {
			// The chain is exhausted. If no legal attempt happened anywhere
			// and image-count headroom remains, synthesize a new output
			// image big enough for the area.
			if s.outAreasTried > 0 || fd.outImageCount == fd.bestOutImageCount {
				return stepDone, true
			}

			oa = &s.newOutAreas[2]
			oa.x = 0
			oa.y = 0
			oa.width = max(area.width, f.maxWidth)
			oa.height = max(area.height, f.maxHeight)
			s.prevOutArea = fd.insertOutArea(oa)

			oa.outImage = fd.outImageCount
			fd.addOutImage()
			s.wasImageAdded = true
		} else {
			s.wasImageAdded = false
		}

		s.outArea = oa
		s.remainRight = oa.width - area.width
		s.remainBottom = oa.height - area.height

		if s.remainRight < 0 || s.remainBottom < 0 {
			s.prevOutArea = oa
			oa = oa.next
			continue
		}

		if fd.checkAreaFitAgainstBest(oa.x+area.width, oa.y+area.height,
			oa.outImage, f.maxSize, s) {
			area.outImage = oa.outImage
			area.outX = oa.x
			area.outY = oa.y

			if f.unfitted.next == nil {
				// Complete placement: publish it against the shared best.
				f.publishBest()
			} else {
				scan := f.unfitted.next
				s.minAreaWidth = scan.width
				s.minAreaHeight = scan.height
				for scan = scan.next; scan != nil; scan = scan.next {
					if scan.width < s.minAreaWidth {
						s.minAreaWidth = scan.width
					}
					if scan.height < s.minAreaHeight {
						s.minAreaHeight = scan.height
					}
				}

				// Detach the host region while the remaining areas recurse
				// over its children.
				s.prevOutArea.next = oa.next

				// First configuration: tall right child, bottom child only
				// as wide as the placed area.
				s.c = 0
				if s.remainRight >= s.minAreaWidth && oa.height >= s.minAreaHeight {
					r := &s.newOutAreas[0]
					r.outImage = oa.outImage
					r.x = oa.x + area.width
					r.y = oa.y
					r.width = s.remainRight
					r.height = oa.height
					s.prevNewOutAreas[0] = fd.insertOutArea(r)
					s.c = 1
				}
				if area.width >= s.minAreaWidth && s.remainBottom >= s.minAreaHeight {
					r := &s.newOutAreas[1]
					r.outImage = oa.outImage
					r.x = oa.x
					r.y = oa.y + area.height
					r.width = area.width
					r.height = s.remainBottom
					s.prevNewOutAreas[s.c] = fd.insertOutArea(r)
					s.c++
				}
				s.c1 = s.c
				s.resume = resumeFirstConfig
				f.push()
				return stepPushed, false
			}

			if s.doImageRestore {
				fd.outImages[oa.outImage] = s.imageSave
				fd.outSize = s.outSizeSave
			}
		}

		next, done := f.trialEpilogue(s)
		if done {
			return stepDone, true
		}
		oa = next
	}
}

// resumeFrame continues a frame whose child popped: it unwinds the finished
// configuration's children, attempts the second configuration if the bounds
// still permit improvement, and otherwise finishes the trial and carries on
// scanning regions and areas.
func (f *fitter) resumeFrame(s *evalFrame) stepResult {
	fd := f.fd

	// Unlink the children inserted for the configuration that just finished.
	for s.c > 0 {
		s.c--
		prev := s.prevNewOutAreas[s.c]
		prev.next = prev.next.next
	}

	if s.resume == resumeFirstConfig &&
		fd.outSize < fd.bestOutSize && fd.outImageCount <= fd.bestOutImageCount {
		oa := s.outArea
		area := s.area

		// Second configuration: right child only as tall as the placed
		// area, bottom child spanning the full region width.
		s.c = 0
		if s.remainRight >= s.minAreaWidth && area.height >= s.minAreaHeight {
			r := &s.newOutAreas[0]
			r.outImage = oa.outImage
			r.x = oa.x + area.width
			r.y = oa.y
			r.width = s.remainRight
			r.height = area.height
			s.prevNewOutAreas[0] = fd.insertOutArea(r)
			s.c = 1
		}
		if oa.width >= s.minAreaWidth && s.remainBottom >= s.minAreaHeight {
			r := &s.newOutAreas[1]
			r.outImage = oa.outImage
			r.x = oa.x
			r.y = oa.y + area.height
			r.width = oa.width
			r.height = s.remainBottom
			s.prevNewOutAreas[s.c] = fd.insertOutArea(r)
			s.c++
		}
		if s.c+s.c1 > 0 {
			s.resume = resumeSecondConfig
			f.push()
			return stepPushed
		}
	}

	// Both configurations are done: re-link the host region and undo the
	// image growth this trial committed.
	s.resume = resumeNone
	s.prevOutArea.next = s.outArea
	if s.doImageRestore {
		fd.outImages[s.outArea.outImage] = s.imageSave
		fd.outSize = s.outSizeSave
	}

	next, done := f.trialEpilogue(s)
	if !done {
		res, scanDone := f.scanRegions(s, next)
		if !scanDone {
			return res
		}
	}

	area := s.area
	s.prevArea.next = area
	s.prevArea = area
	s.area = area.next
	return f.runFrame(s)
}

// trialEpilogue closes out one region trial: a synthesized image is unwound
// and ends the scan, tightened bounds end the scan, and otherwise the scan
// advances past the tried region.
func (f *fitter) trialEpilogue(s *evalFrame) (next *outArea, done bool) {
	fd := f.fd
	oa := s.outArea

	if s.wasImageAdded {
		s.prevOutArea.next = oa.next
		fd.outImageCount--
		return nil, true
	}
	if fd.outSize >= fd.bestOutSize || fd.outImageCount > fd.bestOutImageCount {
		return nil, true
	}
	s.prevOutArea = oa
	return oa.next, false
}

// publishBest records a complete placement into the shared state when it
// beats the best summed size without using more images, and refreshes the
// local bounds from the shared best otherwise.
func (f *fitter) publishBest() {
	fd := f.fd
	g := f.globals

	var published bool
	g.mu.Lock()
	g.stats.BestFitCalls += g.fitCallsLimit - g.fitCallsLeft - f.callsLeft
	g.stats.BestFitImages += fd.outImageCount
	g.stats.BestFits++

	if fd.outSize < g.bestOutSize && fd.outImageCount <= g.bestOutImageCount {
		fd.bestOutSize = fd.outSize
		fd.bestOutImageCount = fd.outImageCount

		g.bestOutSize = fd.outSize
		g.bestOutImageCount = fd.outImageCount
		g.found = true

		if g.bestFitted == nil {
			g.bestFitted = make([]placement, len(f.areas))
		}
		for i := range f.areas {
			n := &f.areas[i]
			g.bestFitted[i] = placement{outImage: n.outImage, outX: n.outX, outY: n.outY}
		}
		g.bestOutImages = append(g.bestOutImages[:0], fd.outImages[:fd.outImageCount]...)
		published = true
	} else {
		fd.bestOutSize = g.bestOutSize
		fd.bestOutImageCount = g.bestOutImageCount
	}
	g.mu.Unlock()

	if published && klog.V(4).Enabled() {
		klog.Infof("areafit: new best fit, out size %v in %v image(s)",
			fd.outSize, fd.outImageCount)
	}
}

// vim: ts=4
