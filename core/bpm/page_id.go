package bpm

import "fmt"

// PageID is an opaque identifier naming a page on the backing store. The
// model imposes only equality and hashability; the dense small integers
// used throughout this package and its tests are an implementation choice,
// not a requirement.
type PageID uint64

// InvalidPageID never names a real page.
const InvalidPageID PageID = ^PageID(0)

func (p PageID) String() string {
	return fmt.Sprintf("page(%d)", uint64(p))
}
