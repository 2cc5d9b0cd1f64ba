package messages

import (
	"fmt"

	"context-capture/src/region"
	"context-capture/src/screenshot"
	"context-capture/src/settings"
)

// Type identifies a message on the wire.
type Type string

const (
	TypeCaptureRegion Type = "CAPTURE_REGION"
	TypeOCRRequest    Type = "OCR_REQUEST"
	TypeLLMRequest    Type = "LLM_REQUEST"
	TypeGetSettings   Type = "GET_SETTINGS"
	TypeSaveSettings  Type = "SAVE_SETTINGS"
	TypeTestAPI       Type = "TEST_API"
	TypeShowResults   Type = "SHOW_RESULTS"
	TypeStartCapture  Type = "START_CAPTURE"
	TypeCropImage     Type = "CROP_IMAGE"
)

// Message is the base interface for all cross-context messages
type Message interface {
	Type() Type
}

// CaptureRegion - sent by a page once the user confirms a selection.
// CaptureID is echoed back in ShowResults.
type CaptureRegion struct {
	Region    region.Region `json:"region"`
	TabID     int           `json:"tabId"`
	CaptureID string        `json:"captureId,omitempty"`
}

func (CaptureRegion) Type() Type { return TypeCaptureRegion }

type OCRRequest struct {
	ImageData screenshot.ImagePayload `json:"imageData"`
}

func (OCRRequest) Type() Type { return TypeOCRRequest }

type LLMRequest struct {
	Text string `json:"text"`
}

func (LLMRequest) Type() Type { return TypeLLMRequest }

type GetSettings struct{}

func (GetSettings) Type() Type { return TypeGetSettings }

// SaveSettings carries a partial settings object; on the wire data is the patch itself.
type SaveSettings struct {
	Patch settings.Patch
}

func (SaveSettings) Type() Type { return TypeSaveSettings }

// Service names accepted by TestAPI.
const (
	ServiceOCR = "ocr"
	ServiceLLM = "llm"
)

type TestAPI struct {
	Service string `json:"service"`
}

func (TestAPI) Type() Type { return TypeTestAPI }

// ShowResults - pushed by the background into the originating page
type ShowResults struct {
	Summary   string        `json:"summary"`
	Region    region.Region `json:"region"`
	CaptureID string        `json:"captureId,omitempty"`
}

func (ShowResults) Type() Type { return TypeShowResults }

// StartCapture - asks a page to begin region selection
type StartCapture struct {
	TabID int `json:"tabId,omitempty"`
}

func (StartCapture) Type() Type { return TypeStartCapture }

// CropImage - internal, background asks the page to crop a full-viewport capture
type CropImage struct {
	ImageData screenshot.ImagePayload `json:"imageData"`
	Region    region.Region           `json:"region"`
}

func (CropImage) Type() Type { return TypeCropImage }

// Context identifiers
const (
	ContextBackground = "background"
	ContextBridge     = "bridge"
	ContextCLI        = "cli"
	ContextTray       = "tray"
)

// PageContext names the page context for a tab.
func PageContext(tabID int) string {
	return fmt.Sprintf("page:%d", tabID)
}

// Envelope wraps messages with metadata for routing. Reply is nil for
// fire-and-forget messages; otherwise the handler must send exactly one Response.
type Envelope struct {
	ID      string
	From    string
	To      string
	Message Message
	Reply   chan<- Response
}
