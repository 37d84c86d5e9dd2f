package services

import (
	"context"

	"arena-agent/internal/config"
	"arena-agent/internal/worldmap"
)

// DetectedObject is one entity the feature extractor found in a frame.
type DetectedObject struct {
	Label     string     `json:"label"`
	Class     string     `json:"class"`
	Box       [4]float64 `json:"box"` // x1, y1, x2, y2
	Embedding []float64  `json:"embedding,omitempty"`
}

// Area is the bounding box area in pixels.
func (d DetectedObject) Area() float64 {
	w := d.Box[2] - d.Box[0]
	h := d.Box[3] - d.Box[1]
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// Frame is the feature extractor's verdict for one request's images.
type Frame struct {
	Objects []DetectedObject `json:"objects"`
}

// Detections flattens a frame into the shape object memory ingests.
func (f Frame) Detections() []worldmap.Detection {
	out := make([]worldmap.Detection, 0, len(f.Objects))
	for _, o := range f.Objects {
		out = append(out, worldmap.Detection{Label: o.Label, Area: o.Area()})
	}
	return out
}

// FeatureExtractor calls the vision feature-extraction service.
type FeatureExtractor struct {
	httpService
}

func NewFeatureExtractor(cfg config.ServiceConfig) *FeatureExtractor {
	return &FeatureExtractor{newHTTPService("feature-extractor", cfg)}
}

// Extract runs per-object detection over the referenced images.
func (f *FeatureExtractor) Extract(ctx context.Context, imageURIs []string) (*Frame, error) {
	var out Frame
	if err := f.post(ctx, "/v1/extract", map[string]any{"images": imageURIs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GroundingResult is the visual-grounding service's match for one object
// query against the current frame.
type GroundingResult struct {
	Found           bool   `json:"found"`
	Label           string `json:"label"`
	ColorImageIndex int    `json:"colorImageIndex"`
	Mask            []int  `json:"mask"`
}

// VisualGrounding resolves an object name against the current frame.
type VisualGrounding struct {
	httpService
}

func NewVisualGrounding(cfg config.ServiceConfig) *VisualGrounding {
	return &VisualGrounding{newHTTPService("visual-grounding", cfg)}
}

func (v *VisualGrounding) Ground(ctx context.Context, object string, frame *Frame) (*GroundingResult, error) {
	var out GroundingResult
	payload := map[string]any{"object": object, "frame": frame}
	if err := v.post(ctx, "/v1/ground", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
