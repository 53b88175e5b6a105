package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrFotoNotFound is returned when a foto does not exist.
	ErrFotoNotFound = errors.New("foto not found")
	// ErrFotoInvalid is returned when a foto upload is malformed.
	ErrFotoInvalid = errors.New("invalid foto")
	// ErrInvalidWidth is returned when a requested image width is out of range.
	ErrInvalidWidth = errors.New("invalid width")
	// ErrFotoTooLarge is returned when an image exceeds the configured size limit.
	ErrFotoTooLarge = errors.New("foto too large")
	// ErrImageTypeNotSupported is returned when an image is not a PNG.
	ErrImageTypeNotSupported = errors.New("image type not supported")
)

// FotoVariant selects one of the stored renditions of a foto.
type FotoVariant string

const (
	FotoOriginal FotoVariant = "original"
	FotoAnotada  FotoVariant = "anotada"
)

// Foto is a camera capture with an optional annotated rendition and its annotation overlay.
// The image bodies live in the blob store; only their IDs are kept here.
type Foto struct {
	ID           int64           `json:"id"`
	Nombre       string          `json:"nombre"`
	CreadoPor    string          `json:"creadoPor"`
	CreatedAt    time.Time       `json:"createdAt"`
	OriginalBlob BlobID          `json:"originalBlob,omitempty"`
	AnotadaBlob  BlobID          `json:"anotadaBlob,omitempty"`
	Anotaciones  json.RawMessage `json:"anotaciones"`
}

// Blob returns the blob ID of the given variant.
func (f Foto) Blob(variant FotoVariant) (BlobID, bool) {
	switch variant {
	case FotoOriginal:
		return f.OriginalBlob, f.OriginalBlob != ""
	case FotoAnotada:
		return f.AnotadaBlob, f.AnotadaBlob != ""
	default:
		return "", false
	}
}
