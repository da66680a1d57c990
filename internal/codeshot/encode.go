package codeshot

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// encode converts a captured PNG into the requested output format.
func encode(png []byte, out Output) ([]byte, error) {
	switch out.Format {
	case FormatJPEG:
		return toJPEG(png, out.Quality)
	case FormatSVG:
		return toSVG(png)
	default:
		return png, nil
	}
}

func toJPEG(png []byte, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// toSVG wraps the capture in an SVG document. The capture is taken at
// device scale factor 2, so the SVG's intrinsic size is half the pixel size.
func toSVG(png []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">`,
		(w+1)/2, (h+1)/2, w, h)
	fmt.Fprintf(&buf, `<image width="%d" height="%d" xlink:href="data:image/png;base64,%s"/>`,
		w, h, base64.StdEncoding.EncodeToString(png))
	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}
