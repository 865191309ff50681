package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/anicoll/tibber-prices/internal/pkg/coordinator"
	"github.com/anicoll/tibber-prices/internal/pkg/model"
)

type coordinatorService interface {
	Snapshot() ([]byte, error)
	State() model.ApiState
	ForceRefresh(ctx context.Context) error
}

type server struct {
	coordinator coordinatorService
	logger      *zap.Logger
}

func New(c coordinatorService) *server {
	return &server{coordinator: c, logger: zap.L()}
}

// Handler exposes the cache snapshot, the current fetch state and a
// manual refresh trigger.
func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache", s.getCache)
	mux.HandleFunc("GET /state", s.getState)
	mux.HandleFunc("POST /refresh", s.postRefresh)
	return LoggingMiddleware(mux)
}

func (s *server) getCache(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.coordinator.Snapshot()
	if err != nil {
		handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(snapshot)
}

func (s *server) getState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"state":"` + s.coordinator.State().String() + `"}`))
}

func (s *server) postRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.ForceRefresh(r.Context()); err != nil {
		if errors.Is(err, coordinator.ErrReauthenticationRequired) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(err.Error()))
			return
		}
		handleError(w, err)
		return
	}
	s.logger.Info("manual refresh triggered")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

func handleError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}
