package region

import "fmt"

// DefaultMinSize is the smallest width/height (in pixels) accepted for a capture.
const DefaultMinSize = 50

// Region is a rectangle in viewport pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromPoints returns the rectangle spanned by a drag from (x0,y0) to (x1,y1).
func FromPoints(x0, y0, x1, y1 int) Region {
	return Region{
		X:      min(x0, x1),
		Y:      min(y0, y1),
		Width:  abs(x1 - x0),
		Height: abs(y1 - y0),
	}
}

// Meets reports whether both dimensions reach minSize.
func (r Region) Meets(minSize int) bool {
	return r.Width >= minSize && r.Height >= minSize
}

// Validate checks the region is capturable with the given minimum size.
func (r Region) Validate(minSize int) error {
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("invalid region origin: x=%d, y=%d", r.X, r.Y)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid region dimensions: width=%d, height=%d", r.Width, r.Height)
	}
	if !r.Meets(minSize) {
		return fmt.Errorf("region %dx%d is smaller than the %dpx minimum", r.Width, r.Height, minSize)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("X=%d Y=%d Width=%d Height=%d", r.X, r.Y, r.Width, r.Height)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
