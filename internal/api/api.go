package api

import (
	"net/http"

	"leaf-backend/internal/core"
	"leaf-backend/internal/messaging"
	"leaf-backend/internal/storage"
	"leaf-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

const DefaultMaxUploadBytes = 10 * 1024 * 1024

type BackendService struct {
	pipeline       *core.Pipeline
	db             *gorm.DB
	storage        storage.ObjectStore
	publisher      messaging.Publisher
	maxUploadBytes int64
}

// NewBackendService serves predictions from pipeline. The batch job routes
// need db, storage and publisher, and answer 503 when any of them is nil.
func NewBackendService(pipeline *core.Pipeline, db *gorm.DB, storage storage.ObjectStore, publisher messaging.Publisher, maxUploadBytes int64) *BackendService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &BackendService{
		pipeline:       pipeline,
		db:             db,
		storage:        storage,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.Health))
	r.Get("/classes", RestHandler(s.Classes))
	r.Get("/knowledge/{label}", RestHandler(s.Knowledge))
	r.With(LimitBody(s.maxRequestBytes())).Post("/predict", RestHandler(s.Predict))

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitJob))
		r.Get("/{job_id}", RestHandler(s.GetJob))
		r.Get("/{job_id}/results", RestHandler(s.GetJobResults))
	})
}

// CORS applies the cross origin policy browsers need to call the API from a
// frontend on another port.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	modelLoaded := s.pipeline != nil
	knowledgeLoaded := modelLoaded && s.pipeline.KnowledgeLoaded()

	status := func(ok bool) string {
		if ok {
			return "loaded"
		}
		return "not_loaded"
	}

	res := api.HealthResponse{
		Status:          "unhealthy",
		ModelLoaded:     modelLoaded,
		KnowledgeLoaded: knowledgeLoaded,
		Details: map[string]string{
			"model":        status(modelLoaded),
			"knowledge_db": status(knowledgeLoaded),
		},
	}
	if modelLoaded && knowledgeLoaded {
		res.Status = "healthy"
	}
	return res, nil
}

func (s *BackendService) Classes(r *http.Request) (any, error) {
	if s.pipeline == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "model is not loaded")
	}
	classes := s.pipeline.Classes()
	return api.ClassesResponse{Classes: classes, NumClasses: len(classes)}, nil
}

func (s *BackendService) Knowledge(r *http.Request) (any, error) {
	if s.pipeline == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "knowledge table is not loaded")
	}
	label := chi.URLParam(r, "label")
	return convertKnowledge(s.pipeline.Lookup(label)), nil
}
