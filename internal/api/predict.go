package api

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"leaf-backend/internal/core"
	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/core/saliency"
	"leaf-backend/pkg/api"
)

var uploadFields = []string{"file", "image"}

// multipartOverhead is the room left in the request body for boundaries and
// part headers on top of the file size limit.
const multipartOverhead = 64 << 10

func (s *BackendService) maxRequestBytes() int64 {
	return s.maxUploadBytes + multipartOverhead
}

func (s *BackendService) readUpload(r *http.Request) ([]byte, error) {
	if r.ContentLength > s.maxRequestBytes() {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "file exceeds the %d byte upload limit", s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "file exceeds the %d byte upload limit", s.maxUploadBytes)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "expected a multipart form upload: %v", err)
	}

	var file multipart.File
	var header *multipart.FileHeader
	var err error
	for _, field := range uploadFields {
		file, header, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing image upload in form field 'file'")
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "file exceeds the %d byte upload limit", s.maxUploadBytes)
	}

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream" {
		return nil, CodedErrorf(http.StatusBadRequest, "file must be an image (JPG/PNG/WEBP), found content type %q", ct)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read uploaded file")
	}

	if _, err := imaging.Sniff(data); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "file must be an image (JPG/PNG/WEBP): %v", err)
	}
	return data, nil
}

// parseMode leaves an empty mode empty so the pipeline default applies.
func parseMode(s string) (saliency.Mode, error) {
	if s == "" {
		return "", nil
	}
	mode, err := saliency.ParseMode(s)
	if err != nil {
		return "", CodedError(http.StatusBadRequest, err)
	}
	return mode, nil
}

func (s *BackendService) Predict(r *http.Request) (any, error) {
	if s.pipeline == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "model is not loaded")
	}

	params, err := ParseRequestQueryParams[api.PredictParams](r)
	if err != nil {
		return nil, err
	}

	mode, err := parseMode(params.Mode)
	if err != nil {
		return nil, err
	}

	data, err := s.readUpload(r)
	if err != nil {
		return nil, err
	}

	opts := core.AnalyzeOptions{
		TopK:       params.TopK,
		Mode:       mode,
		Layer:      params.Layer,
		ClassIndex: params.ClassIndex,
		Explain:    params.Explain == nil || *params.Explain,
	}

	analysis, err := s.pipeline.Analyze(r.Context(), data, opts)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrInvalidImage):
			return nil, CodedErrorf(http.StatusBadRequest, "invalid image: %v", err)
		case errors.Is(err, core.ErrInvalidOptions):
			return nil, CodedError(http.StatusBadRequest, err)
		default:
			stage, _ := core.FailedStage(err)
			slog.Error("error processing image", "stage", stage, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error processing image")
		}
	}

	resp := convertAnalysis(analysis, s.pipeline.Classes())
	if analysis.Overlay != nil {
		resp.GradcamImageBase64 = base64.StdEncoding.EncodeToString(analysis.Overlay)
	}

	slog.Info("prediction completed", "class", resp.PredictedClass, "confidence", resp.Confidence)
	return resp, nil
}
