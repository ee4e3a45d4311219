package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/okulev/facs/pkg/store"
)

// maxListLimit caps one page of report listings.
const maxListLimit = 500

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs every request with its status and duration.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	})
}

// requireAuth checks the bearer token against the configured bcrypt
// hash.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{"missing bearer token"})

			return
		}

		err := bcrypt.CompareHashAndPassword(
			[]byte(s.cfg.Auth.TokenHash), []byte(token),
		)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{"invalid token"})

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{
		Sample:    r.URL.Query().Get("sample"),
		IndexName: r.URL.Query().Get("index"),
		Limit:     maxListLimit,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{"invalid limit"})

			return
		}

		if limit < maxListLimit {
			filter.Limit = limit
		}
	}

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Listing reports failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"listing reports failed"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": records})
}

func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid report id"})

		return
	}

	rec, err := s.store.Get(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{"report not found"})

			return
		}

		s.log.WithError(err).Error("Fetching report failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"fetching report failed"})

		return
	}

	writeJSON(w, http.StatusOK, rec)
}
