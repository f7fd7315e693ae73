package prices

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"PriceWatch/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20

	msgNotFound = "item not found"
)

type Server struct {
	Store Store
	Log   *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			s.logger().Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready")
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/prices", s.list)
	r.Get("/prices/", s.list)
	r.Get("/prices-with-offset", s.listPage)
	r.Get("/prices-with-offset/", s.listPage)
	r.Post("/prices/create", s.create)
	r.Get("/prices/{id}", s.get)
	r.Put("/prices/{id}", s.update)
	r.Delete("/prices/{id}", s.delete)

	return r
}

type itemReq struct {
	Name  *string `json:"name"`
	Price *int64  `json:"price"`
}

type statusResp struct {
	Status string `json:"status"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListAll(r.Context())
	if err != nil {
		s.writeStoreError(w, r, "list prices failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) listPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, "offset must be a non-negative integer")
		return
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 0 {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
		return
	}

	items, err := s.Store.ListPage(r.Context(), offset, limit)
	if err != nil {
		s.writeStoreError(w, r, "list price page failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	it, found, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "get price failed", err, zap.Int64("id", id))
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeItem(w, r)
	if !ok {
		return
	}

	it, err := s.Store.Insert(r.Context(), *req.Name, *req.Price)
	if err != nil {
		s.writeStoreError(w, r, "create price failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeItem(w, r)
	if !ok {
		return
	}

	it, found, err := s.Store.Update(r.Context(), id, *req.Name, *req.Price)
	if err != nil {
		s.writeStoreError(w, r, "update price failed", err, zap.Int64("id", id))
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteJSON(w, http.StatusOK, it)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	removed, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "delete price failed", err, zap.Int64("id", id))
		return
	}
	if !removed {
		kit.WriteError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	kit.WriteJSON(w, http.StatusOK, statusResp{Status: "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, "id must be an integer")
		return 0, false
	}
	return id, true
}

func decodeItem(w http.ResponseWriter, r *http.Request) (itemReq, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	var req itemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, "body must be a JSON object with string name and integer price")
		return itemReq{}, false
	}
	if req.Name == nil || req.Price == nil {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, "name and price are required")
		return itemReq{}, false
	}
	return req, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	s.logger().Error(msg, append(fields, zap.Error(err))...)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout")
	case errors.Is(err, ErrUnavailable):
		kit.WriteError(w, r, http.StatusServiceUnavailable, "store unavailable")
	case errors.Is(err, ErrInvalidPage):
		kit.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		kit.WriteError(w, r, http.StatusInternalServerError, "server error")
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
