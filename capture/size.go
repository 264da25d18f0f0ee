// Package capture owns the camera: it negotiates a capture size, drives the
// session lifecycle and delivers raw frames on a background goroutine.
package capture

import (
	"fmt"

	"github.com/nvr-ai/live-detect/images"
)

// DefaultMinimumSize is the smallest edge accepted for a preview size.
const DefaultMinimumSize = 500

// Size is a capture resolution in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Area returns Width * Height, computed in 64 bits.
func (s Size) Area() int64 { return int64(s.Width) * int64(s.Height) }

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// SizeOf converts a standard resolution into a capture size.
func SizeOf(r images.Resolution) Size { return Size{Width: r.Width, Height: r.Height} }

// SelectSize picks the capture size closest to desired without exceeding
// what the capture bus can carry.
//
// An exact match wins. Otherwise the smallest candidate (by area, first on
// ties) whose edges are both at least max(minimumSize, min(desired.Width,
// desired.Height)) is returned. If no candidate is large enough the first
// candidate in device order is returned.
//
// Arguments:
//   - candidates: Sizes reported by the device, in device order.
//   - desired: The preferred size.
//   - minimumSize: Lower bound for both edges.
//
// Returns:
//   - Size: The chosen size, or the zero Size if there are no candidates.
func SelectSize(candidates []Size, desired Size, minimumSize int) Size {
	choice, _, _ := selectSize(candidates, desired, minimumSize)
	return choice
}

// selectSize also returns the partition, for logging.
func selectSize(candidates []Size, desired Size, minimumSize int) (choice Size, bigEnough, tooSmall []Size) {
	if len(candidates) == 0 {
		return Size{}, nil, nil
	}
	minEdge := max(minimumSize, min(desired.Width, desired.Height))

	for _, c := range candidates {
		if c == desired {
			return desired, nil, nil
		}
		if c.Width >= minEdge && c.Height >= minEdge {
			bigEnough = append(bigEnough, c)
		} else {
			tooSmall = append(tooSmall, c)
		}
	}

	if len(bigEnough) == 0 {
		return candidates[0], bigEnough, tooSmall
	}
	choice = bigEnough[0]
	for _, c := range bigEnough[1:] {
		if c.Area() < choice.Area() {
			choice = c
		}
	}
	return choice, bigEnough, tooSmall
}
