package rooms

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"testing"
)

func testConfig() Config {
	return Config{MaxDrawingBytes: 1 << 20}
}

// pngDataURL encodes a w x 1 PNG so drawings can be told apart by width.
func pngDataURL(t *testing.T, w int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, 1))); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
