package utility

import (
	"fmt"
	"math/rand/v2"
)

// RandomColorHex returns a #rrggbb colour whose channels stay away from pure
// black and white so member labels remain readable on the canvas.
func RandomColorHex() string {
	r := 4 + rand.IntN(248)
	g := 4 + rand.IntN(248)
	b := 4 + rand.IntN(248)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
