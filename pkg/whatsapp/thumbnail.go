package whatsapp

import (
	"bytes"
	"errors"
	"os"

	"github.com/sunshineplan/imgconv"
)

const thumbnailWidth = 72

// Thumbnail loads an image file and encodes a small JPEG preview for document
// messages. An empty path yields no thumbnail.
func Thumbnail(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ThumbnailFromBytes(raw)
}

func ThumbnailFromBytes(raw []byte) ([]byte, error) {
	img, err := imgconv.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.New("error while decoding thumbnail image stream")
	}

	var out bytes.Buffer
	err = imgconv.Write(&out,
		imgconv.Resize(img, &imgconv.ResizeOption{Width: thumbnailWidth}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, errors.New("error while encoding thumbnail image stream")
	}
	return out.Bytes(), nil
}
