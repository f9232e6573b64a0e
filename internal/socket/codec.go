package socket

import (
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Sub-protocols a client may request during the upgrade.
const (
	ProtocolJSON = "switchboard.json"
	ProtocolCBOR = "switchboard.cbor"
)

// Codec encodes frames for one negotiated sub-protocol.
type Codec interface {
	Name() string
	// MessageType is the websocket frame type the codec writes.
	MessageType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// codecFor picks the codec for a negotiated sub-protocol. No sub-protocol
// means JSON.
func codecFor(subprotocol string) Codec {
	if subprotocol == ProtocolCBOR {
		return cborCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return ProtocolJSON }
func (jsonCodec) MessageType() int                   { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("socket: CBOR encoder initialization failed: " + err.Error())
	}
	// Payloads are relayed to JSON clients too, so untyped maps must decode
	// with string keys.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("socket: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Name() string                       { return ProtocolCBOR }
func (cborCodec) MessageType() int                   { return websocket.BinaryMessage }
func (cborCodec) Marshal(v any) ([]byte, error)      { return cborEnc.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }
