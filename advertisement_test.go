package gatt

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func TestNameScanResponsePacket(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{
			name: "gopher",
			want: "0709676f70686572",
		},
		{
			name: "gophergophergophergophergophergopher",
			want: "1e08676f70686572676f70686572676f70686572676f70686572676f706865",
		},
	}

	for _, tt := range cases {
		pack := NameScanResponsePacket(tt.name)
		if got := fmt.Sprintf("%x", pack); got != tt.want {
			t.Errorf("NameScanResponsePacket(%q): got %q want %q", tt.name, got, tt.want)
		}
	}
}

func TestServiceAdvertisingPacket(t *testing.T) {
	cases := []struct {
		uu   []UUID
		want string
		fit  []UUID // if different than uu
	}{
		{
			uu:   []UUID{UUID16(0xFAFE)},
			want: "0201060302fefa",
		},
		{
			uu:   []UUID{UUID16(0xFAFE), UUID16(0xFAF9)},
			want: "0201060302fefa0302f9fa",
		},
		{
			uu:   []UUID{MustParseUUID("ABABABABABABABABABABABABABABABAB")},
			want: "0201061106abababababababababababababababab",
		},
		{
			uu: []UUID{
				MustParseUUID("ABABABABABABABABABABABABABABABAB"),
				MustParseUUID("CDCDCDCDCDCDCDCDCDCDCDCDCDCDCDCD"),
			},
			want: "0201061106abababababababababababababababab",
			fit:  []UUID{MustParseUUID("ABABABABABABABABABABABABABABABAB")},
		},
		{
			uu: []UUID{
				UUID16(0xaaaa), UUID16(0xbbbb),
				UUID16(0xcccc), UUID16(0xdddd),
				UUID16(0xeeee), UUID16(0xffff),
				UUID16(0xaaaa), UUID16(0xbbbb),
			},
			want: "0201060302aaaa0302bbbb0302cccc0302dddd0302eeee0302ffff0302aaaa",
			fit: []UUID{
				UUID16(0xaaaa), UUID16(0xbbbb),
				UUID16(0xcccc), UUID16(0xdddd),
				UUID16(0xeeee), UUID16(0xffff),
				UUID16(0xaaaa),
			},
		},
	}

	for _, tt := range cases {
		pack, fit := ServiceAdvertisingPacket(tt.uu)
		if got := fmt.Sprintf("%x", pack); got != tt.want {
			t.Errorf("ServiceAdvertisingPacket(%v) packet: got %q want %q", tt.uu, got, tt.want)
		}
		if tt.fit == nil {
			tt.fit = tt.uu
		}
		if !reflect.DeepEqual(fit, tt.fit) {
			t.Errorf("ServiceAdvertisingPacket(%v) fit: got %v want %v", tt.uu, fit, tt.fit)
		}
	}
}

func TestAppendName(t *testing.T) {
	cases := []struct {
		curr      []byte
		name      string
		wantBytes []byte
		wantLen   int
	}{
		{
			curr:      []byte{},
			name:      "ABCDE",
			wantBytes: []byte{0x06, typeCompleteName, 'A', 'B', 'C', 'D', 'E'},
			wantLen:   7,
		},
		{
			curr:      []byte("111111111122222222223333"),
			name:      "ABCDE",
			wantBytes: append([]byte("111111111122222222223333"), []byte{0x06, typeCompleteName, 'A', 'B', 'C', 'D', 'E'}...),
			wantLen:   31,
		},
		{
			curr:      []byte("1111111111222222222233333"),
			name:      "ABCDE",
			wantBytes: append([]byte("1111111111222222222233333"), []byte{0x05, typeShortName, 'A', 'B', 'C', 'D'}...),
			wantLen:   31,
		},
	}
	for _, tt := range cases {
		a := &AdvPacket{data: append([]byte(nil), tt.curr...)}
		if err := a.AppendName(tt.name); err != nil {
			t.Errorf("%q a.AppendName(%q): %v", tt.curr, tt.name, err)
		}
		if !bytes.Equal(a.Bytes(), tt.wantBytes) {
			t.Errorf("%q a.AppendName(%q) got %x want %x", tt.curr, tt.name, a.Bytes(), tt.wantBytes)
		}
		if a.Len() != tt.wantLen {
			t.Errorf("%q a.AppendName(%q) got %d want %d", tt.curr, tt.name, a.Len(), tt.wantLen)
		}
	}

	full := &AdvPacket{data: make([]byte, 30)}
	if err := full.AppendName("A"); err != ErrEIRPacketTooLong {
		t.Errorf("no room: got %v want ErrEIRPacketTooLong", err)
	}
}

func TestAppendField(t *testing.T) {
	a := new(AdvPacket)
	if err := a.AppendField(typeTxPower, []byte{0xf4}); err != nil {
		t.Fatal(err)
	}
	if err := a.AppendField(typeManufacturerData, make([]byte, 27)); err != ErrEIRPacketTooLong {
		t.Errorf("got %v want ErrEIRPacketTooLong", err)
	}
	if want := []byte{0x02, typeTxPower, 0xf4}; !bytes.Equal(a.Bytes(), want) {
		t.Errorf("a failed append changed the packet: %x", a.Bytes())
	}
}

func TestAppendServices(t *testing.T) {
	a := new(AdvPacket)
	if err := a.AppendServices([]UUID{UUID16(0x180F), UUID16(0x1802)}); err != nil {
		t.Fatal(err)
	}
	if got, want := fmt.Sprintf("%x", a.Bytes()), "05030f180218"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	err := a.AppendServices([]UUID{UUID16(0x180F), UUID32(0x1802)})
	if errors.Cause(err) != ErrInvalidUUID {
		t.Errorf("mixed widths: got %v", err)
	}
}

func TestAppendManufacturerData(t *testing.T) {
	a := new(AdvPacket)
	a.AppendManufacturerData(0x004C, []byte{0x02, 0x15})
	if got, want := fmt.Sprintf("%x", a.Bytes()), "05ff4c000215"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

// The advertising and scan response payloads of the battery
// peripheral, built by hand and with AdvPacket.
var (
	batteryAdv = []byte{
		0x02, 0x01, 0x06,
		0x03, 0x03, 0x09, 0x18,
		0x0a, 0x09, 'H', 'e', 'l', 'l', 'o', 'R', 'u', 's', 't',
	}
	batteryScan = []byte{
		0x03, 0x03, 0x09, 0x18,
	}
)

func TestBuildBatteryPayload(t *testing.T) {
	a := new(AdvPacket)
	a.AppendFlags(FlagGeneralDiscoverable | FlagLEOnly)
	a.AppendServices([]UUID{UUID16(0x1809)})
	a.AppendName("HelloRust")
	if !bytes.Equal(a.Bytes(), batteryAdv) {
		t.Errorf("adv: got %x want %x", a.Bytes(), batteryAdv)
	}

	s := new(AdvPacket)
	s.AppendServices([]UUID{UUID16(0x1809)})
	if !bytes.Equal(s.Bytes(), batteryScan) {
		t.Errorf("scan: got %x want %x", s.Bytes(), batteryScan)
	}
}

func TestAdvertisementUnmarshal(t *testing.T) {
	var a Advertisement
	b := append(append([]byte(nil), batteryAdv...), 0x02, typeTxPower, 0xf4)
	if err := a.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	want := Advertisement{
		Flags:        FlagGeneralDiscoverable | FlagLEOnly,
		LocalName:    "HelloRust",
		Services:     []UUID{UUID16(0x1809)},
		TxPowerLevel: -12,
	}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("got %+v want %+v", a, want)
	}
}

func TestValidateAdvData(t *testing.T) {
	cases := []struct {
		b    []byte
		want error
	}{
		{b: nil},
		{b: batteryAdv},
		{b: batteryScan},
		{b: []byte{0x02, 0x01, 0x06, 0x00, 0x00}},
		{b: make([]byte, 32), want: ErrEIRPacketTooLong},
		{b: []byte{0x05, 0x09, 'a'}, want: ErrInvalidAdvData},
	}
	for _, tt := range cases {
		if err := ValidateAdvData(tt.b); errors.Cause(err) != tt.want {
			t.Errorf("ValidateAdvData(%x): got %v want %v", tt.b, err, tt.want)
		}
	}
}
