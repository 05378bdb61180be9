package gatt

import "github.com/pkg/errors"

// CharacteristicHandles are the handles the host allocated for one
// characteristic. CCCDHandle is 0 unless the characteristic notifies
// or indicates.
type CharacteristicHandles struct {
	ValueHandle uint16
	CCCDHandle  uint16
}

// entry is one registered characteristic.
type entry struct {
	char    Characteristic
	handles CharacteristicHandles
}

// subscription decodes a CCCD write for this characteristic, masking
// the bits for capabilities it does not have.
func (e entry) subscription(data []byte) Subscription {
	s := DecodeCCCD(data)
	s.Notify = s.Notify && e.char.Props.Notifiable()
	s.Indicate = s.Indicate && e.char.Props.Indicatable()
	return s
}

// handleIndex resolves attribute handles to registered characteristics.
// It is built by Register and read-only afterwards, so lookups need no lock.
type handleIndex struct {
	entries []entry // declaration order
	byValue map[uint16]int
	byCCCD  map[uint16]int
}

func newHandleIndex() *handleIndex {
	return &handleIndex{
		byValue: make(map[uint16]int),
		byCCCD:  make(map[uint16]int),
	}
}

// add records the handles of c. Handles must be non-zero and unused.
func (x *handleIndex) add(c Characteristic, hh CharacteristicHandles) error {
	if hh.ValueHandle == 0 {
		return errors.Wrap(ErrInvalidHandle, "host returned value handle 0")
	}
	if x.used(hh.ValueHandle) {
		return errors.Wrapf(ErrInvalidHandle, "duplicate value handle 0x%04X", hh.ValueHandle)
	}
	needCCCD := c.Perm().NeedsCCCD()
	switch {
	case needCCCD && hh.CCCDHandle == 0:
		return errors.Wrap(ErrInvalidHandle, "host returned no cccd handle")
	case !needCCCD && hh.CCCDHandle != 0:
		return errors.Wrapf(ErrInvalidHandle, "unexpected cccd handle 0x%04X", hh.CCCDHandle)
	case needCCCD && (hh.CCCDHandle == hh.ValueHandle || x.used(hh.CCCDHandle)):
		return errors.Wrapf(ErrInvalidHandle, "duplicate cccd handle 0x%04X", hh.CCCDHandle)
	}

	i := len(x.entries)
	x.entries = append(x.entries, entry{char: c, handles: hh})
	x.byValue[hh.ValueHandle] = i
	if needCCCD {
		x.byCCCD[hh.CCCDHandle] = i
	}
	return nil
}

func (x *handleIndex) used(h uint16) bool {
	_, v := x.byValue[h]
	_, c := x.byCCCD[h]
	return v || c
}

// value returns the characteristic whose value handle is h.
func (x *handleIndex) value(h uint16) (entry, bool) {
	i, ok := x.byValue[h]
	if !ok {
		return entry{}, false
	}
	return x.entries[i], true
}

// cccd returns the characteristic whose CCCD handle is h.
func (x *handleIndex) cccd(h uint16) (entry, bool) {
	i, ok := x.byCCCD[h]
	if !ok {
		return entry{}, false
	}
	return x.entries[i], true
}
