package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for payloads that are not a JSON object with a
	// string "type" field, or whose fields do not fit the named kind.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownKind is returned when the "type" field names no known kind.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
)

type envelope struct {
	Type Kind `json:"type"`
}

// Encode serializes m with its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	var v any
	switch msg := m.(type) {
	case Edit:
		v = struct {
			envelope
			Edit
		}{envelope{KindEdit}, msg}
	case Image:
		v = struct {
			envelope
			Image
		}{envelope{KindImage}, msg}
	case RemoveImage:
		v = struct {
			envelope
			RemoveImage
		}{envelope{KindRemoveImage}, msg}
	case BroadcastEdit:
		v = struct {
			envelope
			BroadcastEdit
		}{envelope{KindBroadcastEdit}, msg}
	case BroadcastImage:
		v = struct {
			envelope
			BroadcastImage
		}{envelope{KindBroadcastImage}, msg}
	case BroadcastRemoveImage:
		v = struct {
			envelope
			BroadcastRemoveImage
		}{envelope{KindBroadcastRemoveImage}, msg}
	case Connected:
		v = struct {
			envelope
			Connected
		}{envelope{KindConnected}, msg}
	case Viewers:
		v = struct {
			envelope
			Viewers
		}{envelope{KindViewers}, msg}
	default:
		return nil, fmt.Errorf("protocol: encode %T: %w", m, ErrUnknownKind)
	}
	return json.Marshal(v)
}

// MustEncode is Encode for messages built from values that always marshal.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one wire message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	case KindEdit:
		m, err = decodeAs[Edit](data)
	case KindImage:
		m, err = decodeAs[Image](data)
	case KindRemoveImage:
		m, err = decodeAs[RemoveImage](data)
	case KindBroadcastEdit:
		m, err = decodeAs[BroadcastEdit](data)
	case KindBroadcastImage:
		m, err = decodeAs[BroadcastImage](data)
	case KindBroadcastRemoveImage:
		m, err = decodeAs[BroadcastRemoveImage](data)
	case KindConnected:
		m, err = decodeAs[Connected](data)
	case KindViewers:
		m, err = decodeAs[Viewers](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := checkRequired(env.Type, data); err != nil {
		return nil, err
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// required lists the fields each kind must carry. A missing or null field
// makes the frame malformed; it is never read as a zero value.
var required = map[Kind][]string{
	KindEdit:                 {"content", "language"},
	KindBroadcastEdit:        {"content", "language"},
	KindImage:                {"image"},
	KindBroadcastImage:       {"image"},
	KindRemoveImage:          {"id"},
	KindBroadcastRemoveImage: {"id"},
	KindConnected:            {"slug", "viewers"},
	KindViewers:              {"count"},
}

var imageFields = []string{"id", "data_url", "width", "height"}

func checkRequired(k Kind, data []byte) error {
	obj, err := requireFields(data, required[k])
	if err != nil {
		return err
	}
	if k == KindImage || k == KindBroadcastImage {
		if _, err := requireFields(obj["image"], imageFields); err != nil {
			return fmt.Errorf("image: %w", err)
		}
	}
	return nil
}

func requireFields(data []byte, names []string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, name := range names {
		v, ok := obj[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, fmt.Errorf("%w: %s is required", ErrMalformed, name)
		}
	}
	return obj, nil
}

// validate enforces the fields each kind cannot do without.
func validate(m Message) error {
	switch msg := m.(type) {
	case Image:
		if msg.Image.ID == "" {
			return fmt.Errorf("%w: image.id is required", ErrMalformed)
		}
	case BroadcastImage:
		if msg.Image.ID == "" {
			return fmt.Errorf("%w: image.id is required", ErrMalformed)
		}
	case RemoveImage:
		if msg.ID == "" {
			return fmt.Errorf("%w: id is required", ErrMalformed)
		}
	case BroadcastRemoveImage:
		if msg.ID == "" {
			return fmt.Errorf("%w: id is required", ErrMalformed)
		}
	}
	return nil
}
