package filestore

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/songzhibin97/qwork/pkg/market"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

var mp4Header = []byte("\x00\x00\x00\x1cftypisom\x00\x00\x02\x00isomiso2mp41")

func TestPrepare_Kinds(t *testing.T) {
	pngData := pngBytes(t, 4, 4)

	tests := []struct {
		name    string
		kind    Kind
		upload  *Upload
		wantExt string
		wantErr bool
	}{
		{"png image", KindImage, &Upload{Filename: "a.png", Data: pngData}, "png", false},
		{"pdf document", KindDocument, &Upload{Filename: "cv.pdf", Data: []byte("%PDF-1.4\n%test\n")}, "pdf", false},
		{"image as document", KindDocument, &Upload{Filename: "scan.png", Data: pngData}, "png", false},
		{"mp4 video", KindVideo, &Upload{Filename: "clip.mp4", Data: mp4Header}, "mp4", false},
		{"text as image", KindImage, &Upload{Filename: "a.png", Data: []byte("just some text")}, "", true},
		{"image as video", KindVideo, &Upload{Filename: "a.mp4", Data: pngData}, "", true},
		{"empty", KindImage, &Upload{Filename: "a.png"}, "", true},
		{"nil", KindDocument, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prepare(tt.kind, tt.upload, MediaOptions{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				if !market.IsValidationError(err) {
					t.Errorf("Expected validation error, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Prepare() returned error: %v", err)
			}
			if got.Ext != tt.wantExt {
				t.Errorf("Expected ext %s, got %s", tt.wantExt, got.Ext)
			}
		})
	}
}

func TestPrepare_DownscalesLargeImages(t *testing.T) {
	data := pngBytes(t, 200, 100)

	got, err := Prepare(KindImage, &Upload{Filename: "big.png", Data: data}, MediaOptions{MaxImageDimension: 50})
	if err != nil {
		t.Fatalf("Prepare() returned error: %v", err)
	}

	img, err := imaging.Decode(bytes.NewReader(got.Data))
	if err != nil {
		t.Fatalf("Decode() returned error: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 25 {
		t.Errorf("Expected 50x25 image, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	small := pngBytes(t, 10, 10)
	got, err = Prepare(KindImage, &Upload{Filename: "small.png", Data: small}, MediaOptions{MaxImageDimension: 50})
	if err != nil {
		t.Fatalf("Prepare() returned error: %v", err)
	}
	if !bytes.Equal(got.Data, small) {
		t.Error("Expected small image to be stored unchanged")
	}
}
