package postprocess

import "github.com/nvr-ai/live-detect/images"

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which a box is suppressed. Zero or
	// less disables suppression.
	IoUThreshold float32 `json:"iouThreshold" yaml:"iouThreshold"`
	// ClassAware suppresses only boxes of the same class.
	ClassAware bool `json:"classAware" yaml:"classAware"`
}

// Enabled reports whether suppression should run.
func (c NMSConfig) Enabled() bool { return c.IoUThreshold > 0 }

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Each kept detection suppresses every later detection whose IoU with it
// exceeds the threshold. The input is not modified.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, in input order.
func ApplyGreedyNMS(detections []Detection, config NMSConfig) []Detection {
	n := len(detections)
	if n == 0 || !config.Enabled() {
		return detections
	}

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != detections[j].Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
