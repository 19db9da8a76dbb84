package api

import (
	"time"

	"github.com/google/uuid"
)

type HealthResponse struct {
	Status          string            `json:"status"`
	ModelLoaded     bool              `json:"model_loaded"`
	KnowledgeLoaded bool              `json:"knowledge_db_loaded"`
	Details         map[string]string `json:"details"`
}

type ClassesResponse struct {
	Classes    []string `json:"classes"`
	NumClasses int      `json:"num_classes"`
}

// PredictParams are the query parameters of POST /predict.
type PredictParams struct {
	TopK       int    `schema:"top_k"`
	Mode       string `schema:"mode"`
	Layer      string `schema:"layer"`
	ClassIndex *int   `schema:"class_index"`
	Explain    *bool  `schema:"explain"`
}

type RankedPrediction struct {
	Class      string  `json:"class"`
	Index      int     `json:"index"`
	Confidence float32 `json:"confidence"`
}

type Knowledge struct {
	ScientificName  string   `json:"Scientific Name"`
	MedicinalUses   []string `json:"Medicinal Uses"`
	ActiveCompounds []string `json:"Active Compounds"`
	Precautions     string   `json:"Precautions"`
	Sources         []string `json:"Sources"`
	Available       bool     `json:"available"`
}

type Timings struct {
	PreprocessMs int64 `json:"preprocess_ms"`
	PredictMs    int64 `json:"predict_ms"`
	ExplainMs    int64 `json:"explain_ms"`
}

type PredictResponse struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float32            `json:"confidence"`
	Top            []RankedPrediction `json:"top"`
	Knowledge      Knowledge          `json:"knowledge"`

	ExplainedClass     string `json:"explained_class,omitempty"`
	Mode               string `json:"mode,omitempty"`
	Layer              string `json:"layer,omitempty"`
	GradcamImageBase64 string `json:"gradcam_image_base64,omitempty"`

	Timings Timings `json:"timings"`
}

type SubmitJobRequest struct {
	SourceBucket string `json:"source_bucket"`
	SourcePrefix string `json:"source_prefix"`
	DestBucket   string `json:"dest_bucket"`
	Mode         string `json:"mode"`
	Layer        string `json:"layer"`
	TopK         int    `json:"top_k"`
}

type SubmitJobResponse struct {
	JobId     uuid.UUID `json:"job_id"`
	TaskCount int       `json:"task_count"`
}

type Job struct {
	Id             uuid.UUID  `json:"id"`
	Status         string     `json:"status"`
	SourceBucket   string     `json:"source_bucket"`
	SourcePrefix   string     `json:"source_prefix"`
	DestBucket     string     `json:"dest_bucket"`
	Mode           string     `json:"mode"`
	Layer          string     `json:"layer"`
	TopK           int        `json:"top_k"`
	TotalCount     int        `json:"total_count"`
	SucceededCount int        `json:"succeeded_count"`
	FailedCount    int        `json:"failed_count"`
	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type JobResult struct {
	ObjectKey      string  `json:"object_key"`
	Label          string  `json:"label,omitempty"`
	ClassIndex     int     `json:"class_index"`
	Confidence     float32 `json:"confidence"`
	ExplainedClass int     `json:"explained_class"`
	OverlayKey     string  `json:"overlay_key,omitempty"`
	Error          string  `json:"error,omitempty"`
}
