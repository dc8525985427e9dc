package inference

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gen2brain/webp"
)

// DataURI embeds img as a base64 data URI, the form stored in imageUrl fields.
func DataURI(img Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ParseDataURI decodes a base64 data URI. External URLs and malformed URIs
// report false; they cannot be sent to a model as references.
func ParseDataURI(s string) (Image, bool) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return Image{}, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, false
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Image{}, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return Image{}, false
	}
	if mime == "" {
		mime = "image/png"
	}
	return Image{MIMEType: mime, Data: data}, true
}

// Compact re-encodes img as lossy WebP. Images already in WebP are returned as is.
func Compact(img Image) (Image, error) {
	if img.MIMEType == "image/webp" {
		return img, nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, decoded, webp.Options{Lossless: false, Quality: 90}); err != nil {
		return Image{}, fmt.Errorf("failed to encode webp: %w", err)
	}
	return Image{MIMEType: "image/webp", Data: buf.Bytes()}, nil
}
