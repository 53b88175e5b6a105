package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrBlobNotFound is returned when a blob does not exist in the store.
var ErrBlobNotFound = errors.New("blob not found")

// BlobID identifies a blob. Uploaded images are addressed by the hex SHA-256 of their body;
// derived renditions append a suffix to the ID of their source.
type BlobID string

// String returns the string representation of the BlobID.
func (id BlobID) String() string {
	return string(id)
}

// Blob represents an opaque binary object with an identifier and content.
type Blob struct {
	ID   BlobID
	Body []byte
}

// NewBlob creates a new Blob whose ID is derived from body.
func NewBlob(body []byte) *Blob {
	return &Blob{
		ID:   BlobIDOf(body),
		Body: body,
	}
}

// BlobIDOf returns the content address of body.
func BlobIDOf(body []byte) BlobID {
	sum := sha256.Sum256(body)

	return BlobID(hex.EncodeToString(sum[:]))
}

// Size returns the size of the blob's content in bytes.
func (blob *Blob) Size() int64 {
	return int64(len(blob.Body))
}

// Read returns a reader for accessing the blob's content.
func (blob *Blob) Read() io.Reader {
	return bytes.NewReader(blob.Body)
}

// Bytes returns the blob's content as a byte slice.
func (blob *Blob) Bytes() []byte {
	return blob.Body
}

// WriteTo writes the blob's content to the given writer.
func (blob *Blob) WriteTo(writer io.Writer) (int64, error) {
	n, err := writer.Write(blob.Body)
	if err != nil {
		return int64(n), fmt.Errorf("write: %w", err)
	}

	return int64(n), nil
}

// ReadFrom replaces the blob's content with everything read from reader.
func (blob *Blob) ReadFrom(reader io.Reader) (int64, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read all: %w", err)
	}

	blob.Body = body

	return int64(len(body)), nil
}
