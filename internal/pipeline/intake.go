package pipeline

import (
	"fmt"
	"strings"

	"github.com/flockdir/photoflow/internal/domain"
)

// Validate checks the declared media type and byte size of a selected file.
// It never looks at the payload.
func Validate(in domain.RawImageInput) error {
	if !domain.AcceptedMediaType(in.ContentType) {
		return fmt.Errorf("%w: media type %q is not accepted", domain.ErrInvalidInput, strings.TrimSpace(in.ContentType))
	}
	if in.Size < 0 {
		return fmt.Errorf("%w: negative size %d", domain.ErrInvalidInput, in.Size)
	}
	if in.Size > domain.MaxInputBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrInputTooLarge, in.Size, domain.MaxInputBytes)
	}
	return nil
}
