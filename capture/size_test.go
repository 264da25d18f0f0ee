package capture

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvr-ai/live-detect/images"
)

func TestSelectSize(t *testing.T) {
	phone := []Size{{1920, 1080}, {1280, 720}, {800, 600}, {640, 480}, {352, 288}, {320, 240}}

	tests := []struct {
		name       string
		candidates []Size
		desired    Size
		minimum    int
		want       Size
	}{
		{"exact match", phone, Size{640, 480}, 500, Size{640, 480}},
		{"smallest big enough", phone, Size{1000, 700}, 500, Size{1280, 720}},
		{"minimum dominates", []Size{{1920, 1080}, {640, 480}, {800, 600}}, Size{400, 300}, 500, Size{800, 600}},
		{"nothing big enough", []Size{{352, 288}, {320, 240}}, Size{640, 480}, 500, Size{352, 288}},
		{"tie keeps first", []Size{{1000, 600}, {600, 1000}, {2000, 2000}}, Size{500, 500}, 500, Size{1000, 600}},
		{"empty", nil, Size{640, 480}, 500, Size{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectSize(tt.candidates, tt.desired, tt.minimum))
		})
	}
}

func randomSizes(rng *rand.Rand, n int) []Size {
	out := make([]Size, n)
	for i := range out {
		out[i] = Size{Width: 100 + rng.Intn(2000), Height: 100 + rng.Intn(2000)}
	}
	return out
}

func TestSelectSize_ExactMatchProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		candidates := randomSizes(rng, 1+rng.Intn(12))
		desired := candidates[rng.Intn(len(candidates))]
		assert.Equal(t, desired, SelectSize(candidates, desired, rng.Intn(1500)))
	}
}

func TestSelectSize_MinimumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		candidates := randomSizes(rng, 1+rng.Intn(12))
		desired := Size{Width: 3000 + rng.Intn(10), Height: 50 + rng.Intn(1500)}
		minimum := rng.Intn(1500)
		minEdge := max(minimum, min(desired.Width, desired.Height))

		got := SelectSize(candidates, desired, minimum)

		exists := false
		for _, c := range candidates {
			if c.Width >= minEdge && c.Height >= minEdge {
				exists = true
				assert.LessOrEqual(t, got.Area(), c.Area())
			}
		}
		if exists {
			assert.GreaterOrEqual(t, got.Width, minEdge)
			assert.GreaterOrEqual(t, got.Height, minEdge)
		} else {
			assert.Equal(t, candidates[0], got)
		}
	}
}

func TestSizeOf(t *testing.T) {
	r, ok := images.GetResolutionByType(images.ResolutionTypeVGA)
	assert.True(t, ok)
	assert.Equal(t, Size{640, 480}, SizeOf(r))
	assert.Equal(t, "640x480", SizeOf(r).String())
	assert.True(t, Size{}.IsZero())
}
