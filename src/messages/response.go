package messages

import (
	"bytes"
	"encoding/json"

	"context-capture/src/screenshot"
	"context-capture/src/settings"
)

// Response is either a success payload or an error message, never both.
type Response struct {
	Payload any
	Err     string
}

func OK(payload any) Response { return Response{Payload: payload} }

func Fail(msg string) Response { return Response{Err: msg} }

func (r Response) Failed() bool { return r.Err != "" }

// MarshalJSON renders the payload itself, or {"error": "..."} on failure.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err})
	}
	if r.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Payload)
}

// UnmarshalJSON keeps a success payload as json.RawMessage; use Into to decode it.
func (r *Response) UnmarshalJSON(b []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	if probe.Error != nil && *probe.Error != "" && !hasSuccessTrue(b) {
		*r = Fail(*probe.Error)
		return nil
	}
	*r = OK(json.RawMessage(bytes.Clone(b)))
	return nil
}

// hasSuccessTrue distinguishes advisory errors (OCRResult with success=true) from failures.
func hasSuccessTrue(b []byte) bool {
	var s struct {
		Success bool `json:"success"`
	}
	return json.Unmarshal(b, &s) == nil && s.Success
}

// Into decodes the payload into v. It works for both in-process payloads and
// payloads received over the wire.
func (r Response) Into(v any) error {
	raw, ok := r.Payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(r.Payload); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, v)
}

// Ack is the bare {success:true} acknowledgement.
type Ack struct {
	Success bool `json:"success"`
}

type CropResult struct {
	CroppedImage screenshot.ImagePayload `json:"croppedImage"`
}

type SettingsPayload struct {
	Settings settings.Settings `json:"settings"`
}

type TestAPIResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
