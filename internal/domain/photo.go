package domain

import (
	"errors"
	"mime"
	"strings"
)

// Normalization constants. These are fixed and never exposed as options.
const (
	AspectWidth  = 4
	AspectHeight = 3

	OutputWidth  = 800
	OutputHeight = 600

	JPEGQuality = 90

	MaxInputBytes = 5 * 1024 * 1024
	// MaxInputPixels bounds the decoded bitmap; a small compressed file can
	// still declare huge dimensions.
	MaxInputPixels = 40_000_000

	PlaceholderURL = "/default.png"
	OutputMIMEType = "image/jpeg"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInputTooLarge = errors.New("input too large")
	ErrDecode        = errors.New("decode error")
	ErrEncode        = errors.New("encode error")
)

var acceptedSubtypes = map[string]struct{}{
	"jpeg": {},
	"jpg":  {},
	"png":  {},
}

// RawImageInput is the file as selected by the user. ContentType is the
// declared media type; the payload is not sniffed.
type RawImageInput struct {
	ContentType string
	Size        int64
	Data        []byte
}

// CropRegion is a rectangle in source pixel space whose Width/Height ratio is
// exactly AspectWidth/AspectHeight.
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OutputImage is the encoded result handed back to the caller. Handle is a
// transient reference the caller must release once it is superseded.
type OutputImage struct {
	Width  int
	Height int
	Data   []byte
	Handle string
}

// AcceptedMediaType reports whether contentType is one of image/jpeg,
// image/jpg or image/png, ignoring case and parameters.
func AcceptedMediaType(contentType string) bool {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	kind, subtype, ok := strings.Cut(strings.ToLower(mediaType), "/")
	if !ok || kind != "image" {
		return false
	}
	_, ok = acceptedSubtypes[subtype]
	return ok
}

// RejectReason maps a pipeline error to the short reason reported to clients.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInputTooLarge):
		return "input_too_large"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrEncode):
		return "encode_error"
	default:
		return "internal_error"
	}
}

// UserMessage is the human readable text shown for a rejected input.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "Please select a valid image file (.jpg, .jpeg, or .png)"
	case errors.Is(err, ErrInputTooLarge):
		return "Image file size must be less than 5MB"
	case errors.Is(err, ErrDecode):
		return "The selected file could not be read as an image"
	case errors.Is(err, ErrEncode):
		return "The image could not be processed, please try another file"
	default:
		return "Unexpected error while processing the image"
	}
}
