package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CalvinMagezi/vaultsync/internal/crypto"
)

// ErrEncryptedNoKey reports an encrypted frame arriving at a receiver that
// holds no key. For the relay this is routine, not a protocol error: every
// E2E frame it forwards looks exactly like this, and callers distinguish it
// from a malformed frame with errors.Is.
var ErrEncryptedNoKey = errors.New("protocol: encrypted frame received with no active key")

// Frame is the top-level shape of every frame on the wire: either a
// plaintext message or an AEAD envelope wrapping one.
type Frame struct {
	Encrypted bool            `json:"encrypted"`
	Payload   json.RawMessage `json:"payload"`
}

type typeTag struct {
	Type MessageType `json:"type"`
}

// EncodePlaintext marshals msg (which must already carry its Type field)
// into an unencrypted frame. Any type in the closed set may travel
// plaintext — a sender without an active key has nothing to seal with;
// senders holding a key seal everything off the whitelist via EncodeSealed
// instead.
func EncodePlaintext(msg any) ([]byte, error) {
	t, err := messageType(msg)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", t, err)
	}
	frame := Frame{Encrypted: false, Payload: payload}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal frame: %w", err)
	}
	return out, nil
}

// EncodeSealed marshals msg, seals it under k, and wraps the envelope in a
// frame. Whitelisted types (hello, ping, error, pairing) are rejected:
// they must stay readable before any key is established, and receivers
// refuse them sealed.
func EncodeSealed(k crypto.Key, msg any) ([]byte, error) {
	t, err := messageType(msg)
	if err != nil {
		return nil, err
	}
	if MustBePlaintext(t) {
		return nil, fmt.Errorf("protocol: %s must not be sealed", t)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal message: %w", err)
	}
	env, err := crypto.Seal(k, body)
	if err != nil {
		return nil, fmt.Errorf("protocol: seal: %w", err)
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	frame := Frame{Encrypted: true, Payload: envBytes}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal frame: %w", err)
	}
	return out, nil
}

// Decode parses a wire frame. If it is encrypted, hasKey must be true and k
// is used to unseal it; an encrypted frame with no key fails with
// ErrEncryptedNoKey, distinguishable from malformed input. The returned
// value is one of the concrete message structs in messages.go; callers
// type-switch on it.
func Decode(raw []byte, hasKey bool, k crypto.Key) (any, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	body := []byte(frame.Payload)
	if frame.Encrypted {
		if !hasKey {
			return nil, ErrEncryptedNoKey
		}
		var env crypto.Envelope
		if err := json.Unmarshal(frame.Payload, &env); err != nil {
			return nil, fmt.Errorf("protocol: malformed envelope: %w", err)
		}
		plaintext, err := crypto.Open(k, &env)
		if err != nil {
			return nil, fmt.Errorf("protocol: open envelope: %w", err)
		}
		body = plaintext
	}

	var tag typeTag
	if err := json.Unmarshal(body, &tag); err != nil {
		return nil, fmt.Errorf("protocol: malformed message: %w", err)
	}

	msg, err := newMessage(tag.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", tag.Type, err)
	}

	if frame.Encrypted && MustBePlaintext(tag.Type) {
		return nil, fmt.Errorf("protocol: %s must not be sent encrypted", tag.Type)
	}
	return msg, nil
}

// newMessage allocates the zero value for a message type. Returns an error
// for any type outside the closed set defined in messages.go — an unknown
// variant is rejected rather than silently accepted.
func newMessage(t MessageType) (any, error) {
	switch t {
	case TypeHello:
		return &Hello{}, nil
	case TypeHelloAck:
		return &HelloAck{}, nil
	case TypeIndexRequest:
		return &IndexRequest{}, nil
	case TypeIndexResponse:
		return &IndexResponse{}, nil
	case TypeDeltaPush:
		return &DeltaPush{}, nil
	case TypeDeltaAck:
		return &DeltaAck{}, nil
	case TypeFileRequest:
		return &FileRequest{}, nil
	case TypeFileResponse:
		return &FileResponse{}, nil
	case TypePairRequest:
		return &PairRequest{}, nil
	case TypePairConfirm:
		return &PairConfirm{}, nil
	case TypeDeviceList:
		return &DeviceList{}, nil
	case TypePing:
		return &Ping{}, nil
	case TypePong:
		return &Pong{}, nil
	case TypeError:
		return &ErrorMessage{}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", t)
	}
}

// messageType extracts the Type field from a concrete message pointer via
// the same switch used to construct them, so Encode and Decode agree on
// the closed set.
func messageType(msg any) (MessageType, error) {
	switch v := msg.(type) {
	case *Hello:
		return v.Type, nil
	case *HelloAck:
		return v.Type, nil
	case *IndexRequest:
		return v.Type, nil
	case *IndexResponse:
		return v.Type, nil
	case *DeltaPush:
		return v.Type, nil
	case *DeltaAck:
		return v.Type, nil
	case *FileRequest:
		return v.Type, nil
	case *FileResponse:
		return v.Type, nil
	case *PairRequest:
		return v.Type, nil
	case *PairConfirm:
		return v.Type, nil
	case *DeviceList:
		return v.Type, nil
	case *Ping:
		return v.Type, nil
	case *Pong:
		return v.Type, nil
	case *ErrorMessage:
		return v.Type, nil
	default:
		return "", fmt.Errorf("protocol: unsupported message value %T", msg)
	}
}
