package artifact

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type Getter interface {
	Get(ctx context.Context, name string) (*postgres.Artifact, error)
}

// Handler serves stored artifacts at /artifacts/*.
func Handler(store Getter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if !ValidName(name) {
			http.NotFound(w, r)
			return
		}

		a, err := store.Get(r.Context(), name)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to load artifact", "name", name, "error", err)
			http.Error(w, "artifact unavailable", http.StatusInternalServerError)
			return
		}
		if a == nil {
			http.NotFound(w, r)
			return
		}

		etag := `"` + a.ETag + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(a.Data)
		}
	}
}
