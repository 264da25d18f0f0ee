package images

import (
	"fmt"
	"math"
)

// AspectRatio names a display aspect ratio (e.g., "16:9").
type AspectRatio string

// Common capture aspect ratios.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
	AspectRatio54  AspectRatio = "5:4"
)

// ResolutionType is the common name of a capture resolution.
type ResolutionType string

// Resolution names, smallest first.
const (
	ResolutionTypeQVGA     ResolutionType = "QVGA"
	ResolutionTypeVGA      ResolutionType = "VGA"
	ResolutionTypeNHD      ResolutionType = "nHD"
	ResolutionTypeSVGA     ResolutionType = "SVGA"
	ResolutionTypeFWVGA    ResolutionType = "FWVGA"
	ResolutionTypeQHD540   ResolutionType = "qHD 540p"
	ResolutionTypeXGA      ResolutionType = "XGA"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionType1MP54    ResolutionType = "1MP (5:4)"
	ResolutionTypeHDPlus   ResolutionType = "HD+"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
	ResolutionType2MP43    ResolutionType = "2MP (4:3)"
	ResolutionTypeQHD1440p ResolutionType = "QHD 1440p"
	ResolutionType4KUHD    ResolutionType = "4K UHD"
)

// Resolution describes a capture resolution standard.
type Resolution struct {
	Name        ResolutionType `json:"name" yaml:"name"`
	AspectRatio AspectRatio    `json:"aspectRatio" yaml:"aspectRatio"`
	Width       int            `json:"width" yaml:"width"`
	Height      int            `json:"height" yaml:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Width*r.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

// standardResolutions is ordered by ascending area.
var standardResolutions = []Resolution{
	{ResolutionTypeQVGA, AspectRatio43, 320, 240},
	{ResolutionTypeVGA, AspectRatio43, 640, 480},
	{ResolutionTypeNHD, AspectRatio169, 640, 360},
	{ResolutionTypeSVGA, AspectRatio43, 800, 600},
	{ResolutionTypeFWVGA, AspectRatio169, 854, 480},
	{ResolutionTypeQHD540, AspectRatio169, 960, 540},
	{ResolutionTypeXGA, AspectRatio43, 1024, 768},
	{ResolutionTypeHD720p, AspectRatio169, 1280, 720},
	{ResolutionType1MP54, AspectRatio54, 1280, 1024},
	{ResolutionTypeHDPlus, AspectRatio169, 1600, 900},
	{ResolutionTypeFHD1080p, AspectRatio169, 1920, 1080},
	{ResolutionType2MP43, AspectRatio43, 1600, 1200},
	{ResolutionTypeQHD1440p, AspectRatio169, 2560, 1440},
	{ResolutionType4KUHD, AspectRatio169, 3840, 2160},
}

// StandardResolutions returns a copy of the known capture resolutions.
func StandardResolutions() []Resolution {
	out := make([]Resolution, len(standardResolutions))
	copy(out, standardResolutions)
	return out
}

// GetResolutionByType looks up a resolution by name.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	for _, r := range standardResolutions {
		if r.Name == t {
			return r, true
		}
	}
	return Resolution{}, false
}
