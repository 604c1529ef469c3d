package areafit

import "cmp"

// SortFunc is a prototype for a function that compares two fit areas,
// returning the standard comparer result of -1 for less-than, 1 for
// greater-than, or 0 for equal to.
type SortFunc func(a, b FitArea) int

// SortWidthDesc orders two areas in descending order (greatest to least) by
// comparing their widths. This is the seed order of the search: the widest,
// most constrained areas branch first.
func SortWidthDesc(a, b FitArea) int {
	return cmp.Compare(b.Width, a.Width)
}

// SortPlacement orders two placed areas lexicographically by output image,
// then by x offset, then by y offset, all ascending. All three fields are
// assigned by the search before this ordering is applied.
func SortPlacement(a, b FitArea) int {
	if c := cmp.Compare(a.OutImage, b.OutImage); c != 0 {
		return c
	}
	if c := cmp.Compare(a.OutX, b.OutX); c != 0 {
		return c
	}
	return cmp.Compare(a.OutY, b.OutY)
}

// vim: ts=4
