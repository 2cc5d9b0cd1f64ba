package messages

import (
	"encoding/json"
	"fmt"
)

// Wire is the {"type": ..., "data": ...} form used outside the process.
type Wire struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var decoders = map[Type]func() Message{
	TypeCaptureRegion: func() Message { return &CaptureRegion{} },
	TypeOCRRequest:    func() Message { return &OCRRequest{} },
	TypeLLMRequest:    func() Message { return &LLMRequest{} },
	TypeGetSettings:   func() Message { return &GetSettings{} },
	TypeSaveSettings:  func() Message { return &SaveSettings{} },
	TypeTestAPI:       func() Message { return &TestAPI{} },
	TypeShowResults:   func() Message { return &ShowResults{} },
	TypeStartCapture:  func() Message { return &StartCapture{} },
	TypeCropImage:     func() Message { return &CropImage{} },
}

// ErrUnknownType is returned by Decode for a type with no registered struct.
type ErrUnknownType struct{ Type Type }

func (e ErrUnknownType) Error() string { return fmt.Sprintf("unknown message type %q", e.Type) }

// Decode maps a wire message to its typed value.
func Decode(raw []byte) (Message, error) {
	var w Wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	newMsg, ok := decoders[w.Type]
	if !ok {
		return nil, ErrUnknownType{Type: w.Type}
	}
	msg := newMsg()
	if len(w.Data) > 0 && string(w.Data) != "null" {
		target := any(msg)
		if s, ok := msg.(*SaveSettings); ok {
			target = &s.Patch
		}
		if err := json.Unmarshal(w.Data, target); err != nil {
			return nil, fmt.Errorf("invalid %s data: %w", w.Type, err)
		}
	}
	return deref(msg), nil
}

// deref returns the value form so handlers can type-switch on plain structs.
func deref(m Message) Message {
	switch v := m.(type) {
	case *CaptureRegion:
		return *v
	case *OCRRequest:
		return *v
	case *LLMRequest:
		return *v
	case *GetSettings:
		return *v
	case *SaveSettings:
		return *v
	case *TestAPI:
		return *v
	case *ShowResults:
		return *v
	case *StartCapture:
		return *v
	case *CropImage:
		return *v
	}
	return m
}

// Encode renders msg in wire form.
func Encode(msg Message) ([]byte, error) {
	var data any = msg
	switch m := msg.(type) {
	case SaveSettings:
		data = m.Patch
	case GetSettings:
		data = nil
	}
	w := Wire{Type: msg.Type()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		w.Data = raw
	}
	return json.Marshal(w)
}

func EncodeResponse(r Response) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeResponse(raw []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}
	return r, nil
}
