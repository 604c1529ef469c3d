package areafit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainHeights(fd *fitData) []int {
	var heights []int
	for oa := fd.outAreas.next; oa != nil; oa = oa.next {
		heights = append(heights, oa.height)
	}
	return heights
}

func TestInsertOutArea_AscendingByHeight(t *testing.T) {
	fd := newFitData(nil, 1, 100, 100)

	a := &outArea{height: 5}
	b := &outArea{height: 10}
	c := &outArea{height: 7}
	fd.insertOutArea(a)
	fd.insertOutArea(b)
	fd.insertOutArea(c)

	assert.Equal(t, []int{5, 7, 10, 100}, chainHeights(fd))
}

func TestInsertOutArea_StableForEqualHeights(t *testing.T) {
	fd := newFitData(nil, 1, 100, 100)

	first := &outArea{height: 10, width: 1}
	second := &outArea{height: 10, width: 2}
	fd.insertOutArea(first)
	prev := fd.insertOutArea(second)

	// The later insert goes after the existing equal-height region, and the
	// returned predecessor allows O(1) removal.
	assert.Same(t, first, fd.outAreas.next)
	assert.Same(t, second, first.next)
	assert.Same(t, first, prev)

	prev.next = prev.next.next
	assert.Equal(t, []int{10, 100}, chainHeights(fd))
}

func TestCheckAreaFitAgainstBest(t *testing.T) {
	fd := &fitData{
		outImages:         []OutImage{{}},
		outImageCount:     1,
		bestOutSize:       unbounded,
		bestOutImageCount: noBest,
	}
	s := &evalFrame{}

	// A size-cap overflow is infeasible here, not worse than the best: it
	// must not count as a tried region.
	require.False(t, fd.checkAreaFitAgainstBest(20, 20, 0, 300, s))
	assert.Equal(t, 0, s.outAreasTried)

	// A worse-than-best rejection does count.
	fd.bestOutSize = 300
	require.False(t, fd.checkAreaFitAgainstBest(20, 20, 0, 10000, s))
	assert.Equal(t, 1, s.outAreasTried)

	// Acceptance commits the growth and saves the previous state.
	fd.bestOutSize = unbounded
	require.True(t, fd.checkAreaFitAgainstBest(20, 20, 0, 10000, s))
	assert.Equal(t, 2, s.outAreasTried)
	assert.True(t, s.doImageRestore)
	assert.Equal(t, OutImage{}, s.imageSave)
	assert.Equal(t, 0, s.outSizeSave)
	assert.Equal(t, OutImage{Width: 20, Height: 20, Size: 400}, fd.outImages[0])
	assert.Equal(t, 400, fd.outSize)

	// A placement inside the current extent commits nothing.
	require.True(t, fd.checkAreaFitAgainstBest(10, 10, 0, 10000, s))
	assert.Equal(t, 3, s.outAreasTried)
	assert.False(t, s.doImageRestore)
	assert.Equal(t, OutImage{Width: 20, Height: 20, Size: 400}, fd.outImages[0])
	assert.Equal(t, 400, fd.outSize)
}

func TestNewFitData_Seeding(t *testing.T) {
	seed := []OutImage{{Width: 10, Height: 20}}
	fd := newFitData(seed, 3, 100, 200)

	require.Equal(t, 3, fd.outImageCount)
	assert.Equal(t, OutImage{Width: 10, Height: 20, Size: 200}, fd.outImages[0])
	assert.Equal(t, OutImage{}, fd.outImages[1])
	assert.Equal(t, 200, fd.outSize)

	// The preseeded image contributes its own extent; unseeded images take
	// the caps. The chain follows seed image order.
	var regions []outArea
	for oa := fd.outAreas.next; oa != nil; oa = oa.next {
		regions = append(regions, outArea{outImage: oa.outImage, x: oa.x, y: oa.y, width: oa.width, height: oa.height})
	}
	require.Len(t, regions, 3)
	assert.Equal(t, outArea{outImage: 0, width: 10, height: 20}, regions[0])
	assert.Equal(t, outArea{outImage: 1, width: 100, height: 200}, regions[1])
	assert.Equal(t, outArea{outImage: 2, width: 100, height: 200}, regions[2])
}

func TestAddOutImage(t *testing.T) {
	fd := newFitData(nil, 1, 50, 50)

	fd.addOutImage()
	require.Equal(t, 2, fd.outImageCount)
	assert.Equal(t, OutImage{}, fd.outImages[1])

	// Backtracking drops the slot; re-adding reuses it.
	fd.outImageCount--
	fd.addOutImage()
	assert.Equal(t, 2, fd.outImageCount)
}

func TestRefillCalls_Slices(t *testing.T) {
	g := newGlobals(600)
	f := &fitter{globals: g, fd: &fitData{bestOutSize: unbounded, bestOutImageCount: noBest}}

	require.Equal(t, refillOK, f.refillCalls())
	assert.Equal(t, fitCallSlice, f.callsLeft)
	assert.Equal(t, 600-fitCallSlice, g.fitCallsLeft)

	f.callsLeft = 0
	require.Equal(t, refillOK, f.refillCalls())
	assert.Equal(t, 600-fitCallSlice, f.callsLeft, "the remainder is drawn whole")
	assert.Equal(t, 0, g.fitCallsLeft)

	f.callsLeft = 0
	assert.Equal(t, refillExhausted, f.refillCalls())
}

func TestRefillCalls_LaggingBounds(t *testing.T) {
	g := newGlobals(1000)
	g.bestOutSize = 50
	g.bestOutImageCount = 1
	f := &fitter{globals: g, fd: &fitData{bestOutSize: unbounded, bestOutImageCount: noBest}}

	require.Equal(t, refillLagging, f.refillCalls())
	assert.Equal(t, 50, f.fd.bestOutSize)
	assert.Equal(t, 1, f.fd.bestOutImageCount)
	assert.Equal(t, 1000, g.fitCallsLeft, "no slice is drawn when the bounds lag")
}

func TestFlushCalls(t *testing.T) {
	g := newGlobals(100)
	g.fitCallsLeft = 10
	f := &fitter{globals: g, callsLeft: 40}

	f.flushCalls()

	assert.Equal(t, 50, g.fitCallsLeft)
	assert.Equal(t, 0, f.callsLeft)
}

func TestNewFitter_ChainsSortedAreas(t *testing.T) {
	g := newGlobals(100)
	sorted := []FitArea{{Width: 30, Height: 3}, {Width: 20, Height: 2}, {Width: 10, Height: 1}}

	f := newFitter(100, 100, noBest, g, sorted)

	require.Len(t, f.areas, 3)
	assert.Same(t, &f.areas[0], f.unfitted.next)
	assert.Same(t, &f.areas[1], f.areas[0].next)
	assert.Same(t, &f.areas[2], f.areas[1].next)
	assert.Nil(t, f.areas[2].next)
}

func TestPushRoot_RotatesFirstPlacement(t *testing.T) {
	g := newGlobals(100)
	sorted := []FitArea{{Width: 30}, {Width: 20}, {Width: 10}}

	f := newFitter(100, 100, noBest, g, sorted)
	f.pushRoot(1)

	s := &f.stack[f.depth]
	assert.Same(t, &f.areas[1], s.area)
	assert.Same(t, &f.areas[0], s.prevArea)
}

// vim: ts=4
