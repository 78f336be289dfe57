// ws/decode.go
package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yodablocks/grvt-sdk/types"
)

// Message is one inbound WebSocket frame. Handlers registered without a
// decode tag receive a *Message; Data holds the frame's "data" payload and
// Raw the full frame bytes.
type Message struct {
	Channel        string          `json:"channel"`
	Data           json.RawMessage `json:"data"`
	SequenceNumber *uint64         `json:"sequence_number"`
	Raw            []byte          `json:"-"`
}

// DecodeType selects a typed decoder for a subscription's messages. The
// empty tag means no decoding: handlers receive the *Message as-is.
type DecodeType string

const (
	DecodeRaw         DecodeType = ""
	DecodeOrderbook   DecodeType = "orderbook"
	DecodeTrade       DecodeType = "trade"
	DecodeFill        DecodeType = "fill"
	DecodeOrderUpdate DecodeType = "order_update"
)

// DecodeFunc turns a frame's data payload into a typed value.
type DecodeFunc func(data json.RawMessage) (any, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[DecodeType]DecodeFunc{
		DecodeOrderbook: func(data json.RawMessage) (any, error) {
			v := new(types.Orderbook)
			return v, json.Unmarshal(data, v)
		},
		DecodeTrade: func(data json.RawMessage) (any, error) {
			v := new(types.Trade)
			return v, json.Unmarshal(data, v)
		},
		DecodeFill: func(data json.RawMessage) (any, error) {
			v := new(types.Fill)
			return v, json.Unmarshal(data, v)
		},
		DecodeOrderUpdate: func(data json.RawMessage) (any, error) {
			v := new(types.OrderUpdate)
			return v, json.Unmarshal(data, v)
		},
	}
)

// RegisterDecoder installs a decoder for tag, replacing any previous one.
// Subscriptions created with the tag pick up the new decoder immediately.
func RegisterDecoder(tag DecodeType, fn DecodeFunc) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[tag] = fn
}

// decodeFor resolves the value passed to a subscription's handler. Decode
// failures fall back to the raw message; they never stop dispatch.
func decodeFor(tag DecodeType, msg *Message, logger zerolog.Logger) any {
	if tag == DecodeRaw {
		return msg
	}
	decodersMu.RLock()
	fn, ok := decoders[tag]
	decodersMu.RUnlock()
	if !ok {
		logger.Debug().Str("decode", string(tag)).Msg("No decoder registered; passing raw message")
		return msg
	}

	data := msg.Data
	if len(data) == 0 {
		// Some channels put fields at the top level instead of under "data".
		data = msg.Raw
	}
	v, err := fn(data)
	if err != nil {
		logger.Debug().Err(err).Str("decode", string(tag)).Str("channel", msg.Channel).
			Msg("Typed decode failed; passing raw message")
		return msg
	}
	return v
}
