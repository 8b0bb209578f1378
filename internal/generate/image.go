package generate

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/bitop-dev/t2i/internal/notify"
)

func decodeImage(body []byte, contentType string) (notify.Image, error) {
	if len(body) == 0 {
		return notify.Image{}, fmt.Errorf("empty response body")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return notify.Image{}, fmt.Errorf("response is not a decodable image: %w", err)
	}
	mediaType := "image/" + format
	if ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]); strings.HasPrefix(ct, "image/") {
		mediaType = ct
	}
	return notify.Image{
		Handle:    uuid.NewString(),
		Bytes:     body,
		MediaType: mediaType,
		Format:    format,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
