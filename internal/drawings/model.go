package drawings

import "time"

// Drawing is one submitted artifact. Index is its position in submission order.
type Drawing struct {
	Index       int
	ConnID      string
	Author      string
	MediaType   string
	Width       int
	Height      int
	Size        int
	DataURL     string
	SubmittedAt time.Time
}
