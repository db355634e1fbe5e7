// Package geom holds the pixel-coordinate bounding box type shared by the
// marker detector, smoother, and classifier. Coordinates always refer to the
// original (un-downscaled) camera frame.
package geom

// Box is an axis-aligned bounding box in pixel coordinates. X and Y are the
// top-left corner. Width and Height are never negative.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 { return b.X + b.Width/2 }

// CenterY returns the vertical center of the box.
func (b Box) CenterY() float64 { return b.Y + b.Height/2 }

// WithPadding returns a copy of the box expanded on all sides by the given
// ratio of its own dimensions. A ratio of 0.2 grows a 100px-wide box by 20px
// on the left and 20px on the right.
func (b Box) WithPadding(ratio float64) Box {
	padX := b.Width * ratio
	padY := b.Height * ratio
	return Box{
		X:      b.X - padX,
		Y:      b.Y - padY,
		Width:  b.Width + padX*2,
		Height: b.Height + padY*2,
	}
}

// Scale returns the box with all coordinates multiplied by factor. Used to map
// boxes between downscaled detection space and full frame space.
func (b Box) Scale(factor float64) Box {
	return Box{
		X:      b.X * factor,
		Y:      b.Y * factor,
		Width:  b.Width * factor,
		Height: b.Height * factor,
	}
}

// Lerp blends two boxes component-wise: alpha*new + (1-alpha)*old. An alpha of
// 1 returns b unchanged, 0 returns old unchanged.
func Lerp(old, new Box, alpha float64) Box {
	return Box{
		X:      alpha*new.X + (1-alpha)*old.X,
		Y:      alpha*new.Y + (1-alpha)*old.Y,
		Width:  alpha*new.Width + (1-alpha)*old.Width,
		Height: alpha*new.Height + (1-alpha)*old.Height,
	}
}

// FromCenter builds a Box from a center point and dimensions, as reported by
// classification backends.
func FromCenter(cx, cy, width, height float64) Box {
	return Box{
		X:      cx - width/2,
		Y:      cy - height/2,
		Width:  width,
		Height: height,
	}
}
