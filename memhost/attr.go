package memhost

import (
	gatt "github.com/XC-/gattserver"
)

// attr is one entry of the attribute table.
type attr struct {
	n      uint16    // attribute handle
	typ    gatt.UUID // attribute type
	svc    uint16    // handle of the owning service declaration
	owner  uint16    // value handle a CCCD configures
	perm   gatt.Perm // peer access
	maxLen int
	value  []byte
}

func (a *attr) isService() bool {
	return a.typ.Equal(gatt.AttrPrimaryServiceUUID)
}

func (a *attr) isDeclaration() bool {
	return a.isService() || a.typ.Equal(gatt.AttrCharacteristicUUID)
}

func (a *attr) isCCCD() bool {
	return a.typ.Equal(gatt.AttrClientCharacteristicConfigUUID)
}

// An attrRange is a contiguous range of attributes.
type attrRange struct {
	hh   []*attr
	base uint16 // handle number for first attribute in hh
}

const (
	tooSmall = -1
	tooLarge = -2
)

// idx returns the index into hh corresponding to handle n.
// If n is too small, idx returns tooSmall (-1).
// If n is too large, idx returns tooLarge (-2).
func (r *attrRange) idx(n int) int {
	if n < int(r.base) {
		return tooSmall
	}
	if n >= int(r.base)+len(r.hh) {
		return tooLarge
	}
	return n - int(r.base)
}

// next returns the handle the next appended attribute will get.
func (r *attrRange) next() uint16 {
	return r.base + uint16(len(r.hh))
}

func (r *attrRange) push(a *attr) uint16 {
	a.n = r.next()
	r.hh = append(r.hh, a)
	return a.n
}

// At returns attribute n.
func (r *attrRange) At(n uint16) (*attr, bool) {
	i := r.idx(int(n))
	if i < 0 {
		return nil, false
	}
	return r.hh[i], true
}

// Subrange returns attributes in range [start, end]; it may
// return an empty slice. Subrange does not panic for
// out-of-range start or end.
func (r *attrRange) Subrange(start, end uint16) []*attr {
	startidx := r.idx(int(start))
	switch startidx {
	case tooSmall:
		startidx = 0
	case tooLarge:
		return []*attr{}
	}

	endidx := r.idx(int(end) + 1) // [start, end] includes its upper bound!
	switch endidx {
	case tooSmall:
		return []*attr{}
	case tooLarge:
		endidx = len(r.hh)
	}
	if startidx > endidx {
		return []*attr{}
	}
	return r.hh[startidx:endidx]
}
