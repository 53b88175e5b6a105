package fotosvc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/mkrupp/vidrio/internal/domain"
)

// MIMETypePNG is the only image type fotos are stored as.
const MIMETypePNG = "image/png"

const pngHeader = "\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"

// decodeDataURL accepts "data:image/png;base64,..." or bare base64 and returns the raw bytes.
func decodeDataURL(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)

	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: malformed data url", domain.ErrFotoInvalid)
		}

		if mimeType := strings.TrimSuffix(meta, ";base64"); mimeType != MIMETypePNG {
			return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
		}

		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("%w: decode base64: %w", domain.ErrFotoInvalid, err)
		}
	}

	return data, nil
}

// checkPNG verifies the magic header and that the image config decodes.
func checkPNG(data []byte) (image.Config, error) {
	if !bytes.HasPrefix(data, []byte(pngHeader)) {
		return image.Config{}, domain.ErrImageTypeNotSupported
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: decode png: %w", domain.ErrFotoInvalid, err)
	}

	return cfg, nil
}
