package domain

import (
	"bytes"
	"fmt"
	"io"
)

// Blob is a stored binary object addressed by a storage key.
type Blob struct {
	ID   BlobID
	Body []byte
}

// NewBlob creates a new Blob with the given key and content.
func NewBlob(id BlobID, body []byte) *Blob {
	return &Blob{
		ID:   id,
		Body: body,
	}
}

// Key returns the storage key of the blob.
func (blob *Blob) Key() string {
	return string(blob.ID)
}

// Size returns the size of the blob's content in bytes.
func (blob *Blob) Size() int64 {
	return int64(len(blob.Body))
}

// Read returns a reader over the blob's content.
func (blob *Blob) Read() io.Reader {
	return bytes.NewReader(blob.Body)
}

// Bytes returns the blob's content.
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
