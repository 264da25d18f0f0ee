package inference

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLabels(t *testing.T) {
	labels, err := LoadLabels(strings.NewReader("???\r\nperson\nbicycle\n\ncar\n"))
	require.NoError(t, err)
	assert.Equal(t, Labels{"???", "person", "bicycle", "", "car"}, labels)

	empty, err := LoadLabels(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadLabels(iotest.ErrReader(assert.AnError))
	assert.ErrorIs(t, err, ErrLoad)
}

func TestLabels_LookupUsesOffset(t *testing.T) {
	labels := Labels{"???", "person", "bicycle", "car"}

	for c := 0; c < len(labels)-LabelOffset; c++ {
		got, err := labels.Lookup(c)
		require.NoError(t, err)
		assert.Equal(t, labels[c+1], got)
	}

	for _, c := range []int{-1, -5, len(labels) - 1, len(labels), 100} {
		_, err := labels.Lookup(c)
		assert.ErrorIs(t, err, ErrLabelOutOfRange, "class %d", c)
	}
}
