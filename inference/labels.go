package inference

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// LabelOffset is the distance between a model class index and its label.
// Index 0 of a label file is the reserved background class.
const LabelOffset = 1

// Labels is a newline-delimited label list in file order.
type Labels []string

// LoadLabels reads one label per line. Blank lines are kept so that line
// numbers stay aligned with class indices.
//
// Arguments:
//   - r: The label file.
//
// Returns:
//   - Labels: The labels in file order.
//   - error: ErrLoad if the reader fails.
func LoadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		labels = append(labels, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(ErrLoad, "read labels: %v", err)
	}
	return labels, nil
}

// Lookup returns the label of a model class index, labels[class+LabelOffset].
func (l Labels) Lookup(class int) (string, error) {
	i := class + LabelOffset
	if class < 0 || i >= len(l) {
		return "", errors.Wrapf(ErrLabelOutOfRange, "class %d with %d labels", class, len(l))
	}
	return l[i], nil
}
