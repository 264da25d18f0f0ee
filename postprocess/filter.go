package postprocess

import "sort"

// Filter keeps the detections whose confidence is strictly greater than
// threshold and orders them by descending confidence.
//
// The sort is stable, so detections with equal confidence keep their model
// output order. The returned slice is freshly allocated and shares nothing
// with the batch, so it can be handed to another goroutine.
//
// Arguments:
//   - batch: The raw output of one inference call. May be nil.
//   - threshold: Minimum confidence, exclusive.
//
// Returns:
//   - []Detection: The kept detections, highest confidence first.
func Filter(batch *Batch, threshold float32) []Detection {
	if batch == nil {
		return []Detection{}
	}
	out := make([]Detection, 0, batch.Len())
	for _, d := range batch.detections {
		if d.Confidence > threshold {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
