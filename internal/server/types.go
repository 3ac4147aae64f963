package server

import "github.com/bdougie/annotator/internal/models"

type identityResponse struct {
	AnnotatorID string `json:"annotator_id"`
}

type workResponse struct {
	Success    bool          `json:"success"`
	StartIndex int           `json:"start_index"`
	TotalClips int           `json:"total_clips"`
	Clips      []models.Clip `json:"clips"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Exhausted bool   `json:"exhausted,omitempty"`
	Error     string `json:"error"`
}

type frameErrorResponse struct {
	Error string `json:"error"`
}

type saveResponse struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	AnnotationID  string   `json:"annotation_id"`
	AnnotationIDs []string `json:"annotation_ids,omitempty"`
}

type saveAllRequest struct {
	Annotations []*models.AnnotationRecord `json:"annotations"`
}

type scoreResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Score   float64 `json:"score"`
}

type healthResponse struct {
	Status string `json:"status"`
}
