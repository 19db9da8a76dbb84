// Package client is a Go client for the leaf classification API.
package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"leaf-backend/pkg/api"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

type Client struct {
	client *resty.Client
}

func New(baseURL string) *Client {
	return &Client{client: resty.New().SetBaseURL(baseURL)}
}

// StatusError is returned for any non 2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

func check(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return &StatusError{StatusCode: res.StatusCode(), Message: res.String()}
	}
	return nil
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := check(c.client.R().SetContext(ctx).SetResult(&out).Get("/health"))
	return out, err
}

func (c *Client) Classes(ctx context.Context) (api.ClassesResponse, error) {
	var out api.ClassesResponse
	err := check(c.client.R().SetContext(ctx).SetResult(&out).Get("/classes"))
	return out, err
}

func (c *Client) Knowledge(ctx context.Context, label string) (api.Knowledge, error) {
	var out api.Knowledge
	err := check(c.client.R().SetContext(ctx).SetResult(&out).SetPathParam("label", label).Get("/knowledge/{label}"))
	return out, err
}

func predictQuery(params api.PredictParams) map[string]string {
	query := map[string]string{}
	if params.TopK > 0 {
		query["top_k"] = strconv.Itoa(params.TopK)
	}
	if params.Mode != "" {
		query["mode"] = params.Mode
	}
	if params.Layer != "" {
		query["layer"] = params.Layer
	}
	if params.ClassIndex != nil {
		query["class_index"] = strconv.Itoa(*params.ClassIndex)
	}
	if params.Explain != nil {
		query["explain"] = strconv.FormatBool(*params.Explain)
	}
	return query
}

// Predict uploads one image. filename only names the upload.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader, params api.PredictParams) (api.PredictResponse, error) {
	var out api.PredictResponse
	err := check(c.client.R().
		SetContext(ctx).
		SetQueryParams(predictQuery(params)).
		SetFileReader("file", filepath.Base(filename), image).
		SetResult(&out).
		Post("/predict"))
	return out, err
}

func (c *Client) PredictFile(ctx context.Context, path string, params api.PredictParams) (api.PredictResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return api.PredictResponse{}, err
	}
	defer f.Close()
	return c.Predict(ctx, path, f, params)
}

// SaveOverlay writes the explanation of a prediction as a png file.
func SaveOverlay(res api.PredictResponse, path string) error {
	if res.GradcamImageBase64 == "" {
		return fmt.Errorf("prediction has no explanation overlay")
	}
	data, err := base64.StdEncoding.DecodeString(res.GradcamImageBase64)
	if err != nil {
		return fmt.Errorf("error decoding overlay: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Client) SubmitJob(ctx context.Context, req api.SubmitJobRequest) (api.SubmitJobResponse, error) {
	var out api.SubmitJobResponse
	err := check(c.client.R().SetContext(ctx).SetBody(req).SetResult(&out).Post("/jobs"))
	return out, err
}

func (c *Client) GetJob(ctx context.Context, jobId uuid.UUID) (api.Job, error) {
	var out api.Job
	err := check(c.client.R().SetContext(ctx).SetResult(&out).SetPathParam("job_id", jobId.String()).Get("/jobs/{job_id}"))
	return out, err
}

func (c *Client) JobResults(ctx context.Context, jobId uuid.UUID) ([]api.JobResult, error) {
	var out []api.JobResult
	err := check(c.client.R().SetContext(ctx).SetResult(&out).SetPathParam("job_id", jobId.String()).Get("/jobs/{job_id}/results"))
	return out, err
}
