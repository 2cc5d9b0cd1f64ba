package screenshot

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

// ImagePayload is an encoded raster tagged with its MIME type. On the wire it
// travels as a base64 data URL.
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the payload as data:<mime>;base64,<data>.
func (p ImagePayload) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Base64 returns the raw base64 body without the data URL prefix.
func (p ImagePayload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

func (p ImagePayload) Empty() bool { return len(p.Data) == 0 }

// ParseDataURL accepts a base64 data URL. A bare base64 string is treated as PNG.
func ParseDataURL(s string) (ImagePayload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ImagePayload{}, fmt.Errorf("empty image data")
	}
	mime := MIMEPNG
	body := s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return ImagePayload{}, fmt.Errorf("malformed data URL: missing ','")
		}
		mt, enc, _ := strings.Cut(header, ";")
		if enc != "base64" {
			return ImagePayload{}, fmt.Errorf("unsupported data URL encoding %q", enc)
		}
		if mt != "" {
			mime = mt
		}
		body = rest
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return ImagePayload{}, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return ImagePayload{MIMEType: mime, Data: data}, nil
}

func (p ImagePayload) MarshalJSON() ([]byte, error) {
	if p.Empty() {
		return []byte(`""`), nil
	}
	return json.Marshal(p.DataURL())
}

func (p *ImagePayload) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*p = ImagePayload{}
		return nil
	}
	parsed, err := ParseDataURL(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
