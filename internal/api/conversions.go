package api

import (
	"leaf-backend/internal/core"
	"leaf-backend/internal/core/types"
	"leaf-backend/internal/database"
	"leaf-backend/pkg/api"
)

func convertKnowledge(k types.KnowledgeRecord) api.Knowledge {
	return api.Knowledge{
		ScientificName:  k.ScientificName,
		MedicinalUses:   k.MedicinalUses,
		ActiveCompounds: k.ActiveCompounds,
		Precautions:     k.Precautions,
		Sources:         k.Sources,
		Available:       k.Available,
	}
}

func convertRanked(preds []types.RankedPrediction) []api.RankedPrediction {
	out := make([]api.RankedPrediction, 0, len(preds))
	for _, p := range preds {
		out = append(out, api.RankedPrediction{Class: p.Label, Index: p.Index, Confidence: p.Probability})
	}
	return out
}

func convertAnalysis(a *core.Analysis, classes []string) api.PredictResponse {
	resp := api.PredictResponse{
		PredictedClass: a.Predicted.Label,
		Confidence:     a.Predicted.Probability,
		Top:            convertRanked(a.Top),
		Knowledge:      convertKnowledge(a.Knowledge),
		Timings: api.Timings{
			PreprocessMs: a.Timings.Preprocess.Milliseconds(),
			PredictMs:    a.Timings.Predict.Milliseconds(),
			ExplainMs:    a.Timings.Explain.Milliseconds(),
		},
	}
	if a.Overlay != nil {
		if a.ExplainedClass >= 0 && a.ExplainedClass < len(classes) {
			resp.ExplainedClass = classes[a.ExplainedClass]
		}
		resp.Mode = string(a.Mode)
		resp.Layer = a.Layer
	}
	return resp
}

func convertJob(j database.Job) api.Job {
	job := api.Job{
		Id:             j.Id,
		Status:         j.Status,
		SourceBucket:   j.SourceBucket,
		SourcePrefix:   j.SourcePrefix.String,
		DestBucket:     j.DestBucket,
		Mode:           j.Mode,
		Layer:          j.Layer,
		TopK:           j.TopK,
		TotalCount:     j.TotalCount,
		SucceededCount: j.SucceededCount,
		FailedCount:    j.FailedCount,
		CreationTime:   j.CreationTime,
	}
	if j.CompletionTime.Valid {
		t := j.CompletionTime.Time
		job.CompletionTime = &t
	}
	return job
}

func convertJobResults(rs []database.JobResult) []api.JobResult {
	results := make([]api.JobResult, 0, len(rs))
	for _, r := range rs {
		results = append(results, api.JobResult{
			ObjectKey:      r.ObjectKey,
			Label:          r.Label,
			ClassIndex:     r.ClassIndex,
			Confidence:     r.Confidence,
			ExplainedClass: r.ExplainedClass,
			OverlayKey:     r.OverlayKey,
			Error:          r.Error,
		})
	}
	return results
}
