package shim

import (
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

// Request ops, sent to the shim. Each is answered by an OpResponse
// carrying the same sequence number.
const (
	OpAddService = "add_svc"
	OpAddChr     = "add_chr"
	OpRead       = "read"
	OpWrite      = "write"
	OpNotify     = "notify"
	OpAdvStart   = "adv_start"
	OpAdvStop    = "adv_stop"
	OpDisconnect = "disconnect"
	OpResponse   = "rsp"
)

// Event ops, sent by the shim unsolicited with sequence number 0.
// They share names with requests; the sequence number tells them apart.
const (
	EvConnect    = "connect"
	EvWrite      = "write"
	EvDisconnect = "disconnect"
	EvMTU        = "mtu"
)

// A Msg is one line of the shim protocol. Fields not used by an op are
// omitted from the encoding; byte fields travel base64-encoded.
type Msg struct {
	Op     string `codec:"op"`
	Seq    uint32 `codec:"seq,omitempty"`
	Status Status `codec:"status,omitempty"`

	Conn     uint16 `codec:"conn,omitempty"`
	Addr     string `codec:"addr,omitempty"`
	MTU      int    `codec:"mtu,omitempty"`
	Reason   uint8  `codec:"reason,omitempty"`
	Svc      uint16 `codec:"svc,omitempty"`
	Handle   uint16 `codec:"handle,omitempty"`
	CCCD     uint16 `codec:"cccd,omitempty"`
	UUID     string `codec:"uuid,omitempty"`
	Props    uint8  `codec:"props,omitempty"`
	Perm     uint8  `codec:"perm,omitempty"`
	MaxLen   int    `codec:"max_len,omitempty"`
	Len      int    `codec:"len,omitempty"`
	Indicate bool   `codec:"indicate,omitempty"`
	Data     []byte `codec:"data,omitempty"`
	Adv      []byte `codec:"adv,omitempty"`
	Scan     []byte `codec:"scan,omitempty"`
	ItvlMin  uint16 `codec:"itvl_min,omitempty"`
	ItvlMax  uint16 `codec:"itvl_max,omitempty"`
	ChanMap  uint8  `codec:"chan_map,omitempty"`
}

// isEvent reports whether m is unsolicited.
func (m *Msg) isEvent() bool {
	return m.Seq == 0 && m.Op != OpResponse
}

var jsonHandle = new(codec.JsonHandle)

// EncodeMsg encodes m as one line of JSON.
func EncodeMsg(m *Msg) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, jsonHandle).Encode(m); err != nil {
		return nil, errors.Wrap(err, "encode shim message")
	}
	return append(b, '\n'), nil
}

// DecodeMsg decodes one line of JSON.
func DecodeMsg(line []byte) (*Msg, error) {
	m := new(Msg)
	if err := codec.NewDecoderBytes(line, jsonHandle).Decode(m); err != nil {
		return nil, errors.Wrap(err, "decode shim message")
	}
	if m.Op == "" {
		return nil, errors.New("decode shim message: missing op")
	}
	return m, nil
}
