package sender

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wire format constants. A frame is "ZBXD", the protocol version, the
// payload length as a little-endian uint32, a reserved uint32 and the JSON
// payload.
const (
	Header         = "ZBXD"
	Version   byte = 1
	HeaderLen      = 13

	// MaxResponseSize bounds the payload accepted by ReadFrame on the
	// client side. Acknowledgements are a few hundred bytes.
	MaxResponseSize = 2048
)

var frameMagic = []byte(Header + "\x01")

// EncodeFrame prefixes payload with the trapper header.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, HeaderLen, HeaderLen+len(payload))
	copy(frame, frameMagic)
	binary.LittleEndian.PutUint32(frame[5:9], uint32(len(payload)))
	return append(frame, payload...)
}

// Encode serializes batch and frames it.
func Encode(batch *Batch) ([]byte, error) {
	payload, err := batch.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload), nil
}

// DecodeResponseHeader strips the header off a complete frame and returns
// the JSON text that follows it. ReadFrame hands every frame it reads
// through here.
func DecodeResponseHeader(buf []byte) ([]byte, error) {
	if len(buf) < HeaderLen {
		return nil, protocolErrorf("response of %d bytes is shorter than the %d byte header", len(buf), HeaderLen)
	}
	return buf[HeaderLen:], nil
}

// ReadFrame reads one frame from r and returns its payload. The declared
// length is honoured across partial reads; payloads larger than max are
// refused. A connection closed before any byte arrives yields io.EOF.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	header := make([]byte, HeaderLen)
	n, err := io.ReadFull(r, header)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return nil, protocolErrorf("response of %d bytes is shorter than the %d byte header", n, HeaderLen)
	}
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(header, frameMagic) {
		return nil, protocolErrorf("incorrect header prefix %q", header[:5])
	}

	size := binary.LittleEndian.Uint32(header[5:9])
	if max > 0 && int64(size) > int64(max) {
		return nil, protocolErrorf("declared payload length %d exceeds limit %d", size, max)
	}

	frame := make([]byte, HeaderLen+int(size))
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[HeaderLen:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &ProtocolError{Msg: fmt.Sprintf("truncated payload, expected %d bytes", size), Err: err}
		}
		return nil, err
	}

	return DecodeResponseHeader(frame)
}

// TrapperItem is a sample as decoded by a receiving server. Value keeps
// whatever JSON type the sender used.
type TrapperItem struct {
	Host    string      `json:"host"`
	FullKey string      `json:"key"`
	Value   interface{} `json:"value"`
	Clock   int64       `json:"clock,omitempty"`
}

// Key returns the item key without its bracketed parameters.
func (t TrapperItem) Key() string {
	bracketIndex := strings.Index(t.FullKey, "[")

	if bracketIndex == -1 {
		return t.FullKey
	}

	return t.FullKey[:bracketIndex]
}

// Args returns the bracketed key parameters, if any.
func (t TrapperItem) Args() []string {
	bracketIndex := strings.Index(t.FullKey, "[")

	if bracketIndex == -1 || !strings.HasSuffix(t.FullKey, "]") {
		return []string{}
	}

	args := t.FullKey[bracketIndex+1 : len(t.FullKey)-1]
	return strings.Split(args, ",")
}

// ParseFloat64 converts the item value into a float.
func (t TrapperItem) ParseFloat64() (float64, error) {
	switch v := t.Value.(type) {
	case string:
		value, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q", v)
		}
		return value, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("invalid type %T", v)
	}
}

// Request is a decoded trapper request.
type Request struct {
	Request string        `json:"request"`
	Data    []TrapperItem `json:"data"`
}

// DecodeRequest parses the JSON payload of a sender request.
func DecodeRequest(payload []byte) (*Request, error) {
	var request Request
	if err := json.Unmarshal(payload, &request); err != nil {
		return nil, &ProtocolError{Msg: "could not parse request json", Err: err}
	}
	if request.Request == "" {
		return nil, protocolErrorf("invalid request, missing `request` field")
	}
	return &request, nil
}

// EncodeResponse frames an acknowledgement with the given status and info.
func EncodeResponse(status, info string) []byte {
	payload, _ := json.Marshal(struct {
		Response string `json:"response"`
		Info     string `json:"info"`
	}{status, info})
	return EncodeFrame(payload)
}
