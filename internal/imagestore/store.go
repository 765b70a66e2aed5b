// Package imagestore keeps the representative photo of each student.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
)

// ErrNotFound is returned when a reference does not point to a stored image.
var ErrNotFound = errors.New("image not found")

// Store saves, serves and removes images by opaque reference.
type Store interface {
	// Save stores JPEG data and returns its reference
	Save(ctx context.Context, data []byte) (string, error)
	// Open returns a reader for the referenced image or ErrNotFound
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the image, a missing image is not an error
	Delete(ctx context.Context, ref string) error
}

// New returns the backend selected by configuration.
func New(ctx context.Context, images *config.ImagesConfig, mc *config.MinIOConfig) (Store, error) {
	switch strings.ToLower(images.Store) {
	case "", "local":
		return NewLocal(images.Dir)
	case "minio":
		return NewMinIO(ctx, mc)
	default:
		return nil, fmt.Errorf("unknown image store %q", images.Store)
	}
}

func newRef() string {
	return uuid.NewString() + ".jpg"
}

// validRef rejects references that could escape the store namespace.
func validRef(ref string) bool {
	return ref != "" && ref != "." && ref != ".." && filepath.Base(ref) == ref && !strings.ContainsAny(ref, `/\`)
}
