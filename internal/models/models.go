package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Clip is one video folder of the corpus
type Clip struct {
	Index  int    `json:"index"`
	Folder string `json:"folder"`
	Path   string `json:"-"`
}

// Block is a fixed-size contiguous run of clips
type Block struct {
	Index int
	Size  int
}

// First returns the zero-based corpus index of the block's first clip.
func (b Block) First() int { return b.Index * b.Size }

// Last returns the zero-based corpus index of the block's last clip.
func (b Block) Last() int { return (b.Index+1)*b.Size - 1 }

// FirstGlobal returns the 1-based global index of the block's first clip.
func (b Block) FirstGlobal() int { return b.First() + 1 }

// LastGlobal returns the 1-based global index of the block's last clip.
func (b Block) LastGlobal() int { return b.Last() + 1 }

// Box is an axis-aligned bounding box in pixel coordinates. It travels as
// a JSON array [x_min, y_min, x_max, y_max].
type Box struct {
	XMin, YMin, XMax, YMax float64
}

// Area returns the box area, or zero for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.XMax-b.XMin, b.YMax-b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.XMin, b.YMin, b.XMax, b.YMax})
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	if len(coords) != 4 {
		return fmt.Errorf("bbox: expected 4 coordinates, got %d", len(coords))
	}
	b.XMin, b.YMin, b.XMax, b.YMax = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// Group is one box drawn by an annotator
type Group struct {
	GroupID    int      `json:"groupId"`
	BBox       Box      `json:"bbox"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// VideoInfo describes the frame geometry the client annotated against.
type VideoInfo struct {
	TotalFrames      int    `json:"totalFrames"`
	AnnotationFrame  int    `json:"annotationFrame"`
	CoordinateSystem string `json:"coordinateSystem,omitempty"`
	NormalizedWidth  int    `json:"normalizedWidth,omitempty"`
	NormalizedHeight int    `json:"normalizedHeight,omitempty"`
}

// AnnotationRecord is one submitted unit of work. GlobalIndex is 1-based.
type AnnotationRecord struct {
	ID               string     `json:"id,omitempty"`
	AnnotatorID      string     `json:"annotator_id"`
	GlobalIndex      int        `json:"globalIndex"`
	VideoIndex       int        `json:"videoIndex"`
	VideoFolder      string     `json:"videoFolder"`
	VideoWatched     bool       `json:"videoWatched"`
	TotalWatchTimeMs int64      `json:"totalWatchTimeMs"`
	NumberOfGroups   int        `json:"numberOfGroups"`
	Groups           []Group    `json:"groups"`
	VideoInfo        *VideoInfo `json:"videoInfo,omitempty"`
	Timestamp        string     `json:"timestamp,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ClipIndex returns the zero-based corpus index the record refers to.
func (r AnnotationRecord) ClipIndex() int { return r.GlobalIndex - 1 }

// Boxes returns the bounding boxes of all groups in submission order.
func (r AnnotationRecord) Boxes() []Box {
	boxes := make([]Box, 0, len(r.Groups))
	for _, g := range r.Groups {
		boxes = append(boxes, g.BBox)
	}
	return boxes
}

// Assignment is the work handed to an annotator.
type Assignment struct {
	StartIndex int    `json:"start_index"`
	TotalClips int    `json:"total_clips"`
	Clips      []Clip `json:"clips"`
	Block      int    `json:"block"`
	Resumed    bool   `json:"resumed"`
}
