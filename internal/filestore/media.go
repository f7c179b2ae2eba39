package filestore

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/songzhibin97/qwork/pkg/market"
)

// Kind is the expected content kind of an upload
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

var documentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.oasis.opendocument.text",
	"application/rtf",
	"text/plain",
}

// Upload is an uploaded file buffered in memory
type Upload struct {
	Filename string
	Data     []byte
}

// Prepared is an upload that passed content checks and is ready to stage
type Prepared struct {
	Data []byte
	Ext  string
	MIME string
}

// MediaOptions controls upload preparation
type MediaOptions struct {
	// MaxImageDimension downscales images whose width or height exceeds it.
	// Zero keeps images untouched.
	MaxImageDimension int
	JPEGQuality       int
}

// Prepare sniffs the content of up, checks it against kind and returns the
// bytes and extension to store. Images larger than the configured dimension
// are downscaled.
func Prepare(kind Kind, up *Upload, opts MediaOptions) (*Prepared, error) {
	if up == nil || len(up.Data) == 0 {
		return nil, market.NewValidationError("EMPTY_UPLOAD", fmt.Sprintf("%s upload is empty", kind))
	}

	mtype := mimetype.Detect(up.Data)
	if !accepts(kind, mtype) {
		return nil, market.NewValidationError("INVALID_UPLOAD_TYPE",
			fmt.Sprintf("%s upload has unsupported content type %s", kind, mtype.String()))
	}

	ext := strings.TrimPrefix(mtype.Extension(), ".")
	if ext == "" {
		ext = strings.TrimPrefix(strings.ToLower(filepath.Ext(up.Filename)), ".")
	}

	prepared := &Prepared{Data: up.Data, Ext: ext, MIME: mtype.String()}
	if kind == KindImage && opts.MaxImageDimension > 0 {
		data, err := downscale(up.Data, ext, opts)
		if err != nil {
			return nil, market.NewValidationError("INVALID_IMAGE", "image could not be decoded").WithDetails(err.Error())
		}
		prepared.Data = data
	}
	return prepared, nil
}

func accepts(kind Kind, mtype *mimetype.MIME) bool {
	switch kind {
	case KindImage:
		return strings.HasPrefix(mtype.String(), "image/")
	case KindVideo:
		return strings.HasPrefix(mtype.String(), "video/")
	case KindDocument:
		if strings.HasPrefix(mtype.String(), "image/") {
			return true
		}
		for _, t := range documentTypes {
			if mtype.Is(t) {
				return true
			}
		}
	}
	return false
}

// downscale re-encodes an image that exceeds the maximum dimension.
// Formats imaging cannot encode, and animated gifs, are returned unchanged.
func downscale(data []byte, ext string, opts MediaOptions) ([]byte, error) {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil || format == imaging.GIF {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	limit := opts.MaxImageDimension
	if bounds.Dx() <= limit && bounds.Dy() <= limit {
		return data, nil
	}

	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 85
	}

	resized := imaging.Fit(img, limit, limit, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
