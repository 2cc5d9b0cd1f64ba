package messages

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-capture/src/region"
	"context-capture/src/screenshot"
)

func TestDecodeCaptureRegion(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"CAPTURE_REGION","data":{"region":{"x":1,"y":2,"width":60,"height":70},"tabId":7}}`))
	require.NoError(t, err)
	assert.Equal(t, CaptureRegion{Region: region.Region{X: 1, Y: 2, Width: 60, Height: 70}, TabID: 7}, msg)

	msg, err = Decode([]byte(`{"type":"SHOW_RESULTS","data":{"summary":"s","region":{"x":1,"y":2,"width":60,"height":70},"captureId":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", msg.(ShowResults).CaptureID)
}

func TestDecodeSaveSettingsUsesDataAsPatch(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"SAVE_SETTINGS","data":{"llmService":"gemini","apiKeys":{"gemini":"k"}}}`))
	require.NoError(t, err)
	save, ok := msg.(SaveSettings)
	require.True(t, ok)
	require.NotNil(t, save.Patch.LLMService)
	assert.Equal(t, "gemini", *save.Patch.LLMService)
	assert.Nil(t, save.Patch.OCRService)
	assert.Equal(t, "k", save.Patch.APIKeys["gemini"])
}

func TestDecodeWithoutData(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"START_CAPTURE"}`))
	require.NoError(t, err)
	assert.Equal(t, StartCapture{}, msg)

	msg, err = Decode([]byte(`{"type":"GET_SETTINGS","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, GetSettings{}, msg)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"NOPE"}`))
	var unknown ErrUnknownType
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, Type("NOPE"), unknown.Type)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeDecodeImagePayload(t *testing.T) {
	img := screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: []byte{1, 2, 3}}
	raw, err := Encode(CropImage{ImageData: img, Region: region.Region{Width: 50, Height: 50}})
	require.NoError(t, err)

	var w map[string]any
	require.NoError(t, json.Unmarshal(raw, &w))
	assert.Equal(t, "CROP_IMAGE", w["type"])
	assert.Equal(t, img.DataURL(), w["data"].(map[string]any)["imageData"])

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, img, msg.(CropImage).ImageData)
}

func TestResponseJSON(t *testing.T) {
	raw, err := EncodeResponse(Fail("No text found in image"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"No text found in image"}`, string(raw))

	raw, err = EncodeResponse(OK(Ack{Success: true}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(raw))

	raw, err = EncodeResponse(OK(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestDecodeResponse(t *testing.T) {
	r, err := DecodeResponse([]byte(`{"error":"boom"}`))
	require.NoError(t, err)
	assert.True(t, r.Failed())
	assert.Equal(t, "boom", r.Err)

	// advisory error on a successful OCR result is not a failure
	r, err = DecodeResponse([]byte(`{"text":"","confidence":0,"success":true,"error":"No text found in image"}`))
	require.NoError(t, err)
	assert.False(t, r.Failed())

	r, err = DecodeResponse([]byte(`{"croppedImage":"data:image/png;base64,AQID"}`))
	require.NoError(t, err)
	var crop CropResult
	require.NoError(t, r.Into(&crop))
	assert.Equal(t, []byte{1, 2, 3}, crop.CroppedImage.Data)
}

func TestResponseIntoInProcessPayload(t *testing.T) {
	var ack Ack
	require.NoError(t, OK(Ack{Success: true}).Into(&ack))
	assert.True(t, ack.Success)
}

func TestPageContext(t *testing.T) {
	assert.Equal(t, "page:42", PageContext(42))
}
