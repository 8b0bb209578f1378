package t2i

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/bitop-dev/t2i/internal/catalog"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/store"
)

type (
	Model            = catalog.Model
	ModelStatus      = catalog.Status
	Sink             = notify.Sink
	CrossOriginState = notify.CrossOriginState
	Store            = store.Store
)

const (
	StatusUnknown   = catalog.StatusUnknown
	StatusAvailable = catalog.StatusAvailable
	StatusLoading   = catalog.StatusLoading
	StatusError     = catalog.StatusError

	CrossOriginUncertain   = notify.CrossOriginUncertain
	CrossOriginDetected    = notify.CrossOriginDetected
	CrossOriginNotDetected = notify.CrossOriginNotDetected
)

// DefaultModels is the catalog a previewer starts with when none is given.
func DefaultModels() []Model { return catalog.DefaultModels() }

// Image is a generated picture. Handle identifies it for the lifetime of
// the process.
type Image struct {
	Handle    string
	Bytes     []byte
	MediaType string
	Format    string
	Width     int
	Height    int
}

func imageFrom(img notify.Image) *Image {
	return &Image{
		Handle:    img.Handle,
		Bytes:     img.Bytes,
		MediaType: img.MediaType,
		Format:    img.Format,
		Width:     img.Width,
		Height:    img.Height,
	}
}

func (i *Image) Base64() string { return base64.StdEncoding.EncodeToString(i.Bytes) }

// DataURL renders the image the way a browser <img src> expects it.
func (i *Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MediaType, i.Base64())
}

func (i *Image) WriteFile(path string) error {
	return os.WriteFile(path, i.Bytes, 0o644)
}
