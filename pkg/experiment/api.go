package experiment

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/denisstrizhkin/network-labs/internal/httputil"
	"github.com/denisstrizhkin/network-labs/pkg/arq"
)

// NewAPI returns a read-only HTTP API over store. metrics, if not nil, is
// mounted at /metrics.
//
//	GET /records?protocol=gbn&failed=true
//	GET /records/{id}
func NewAPI(store Store, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(time.Second * 30))
	r.Use(middleware.Recoverer)

	r.Get("/records", listRecords(store))
	r.Get("/records/{id}", getRecord(store))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

func listRecords(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var proto arq.Protocol
		if q := r.URL.Query().Get("protocol"); q != "" {
			p, err := arq.ParseProtocol(q)
			if err != nil {
				httputil.WriteJSON(w, r, http.StatusBadRequest, err)
				return
			}
			proto = p
		}
		failed, err := httputil.BoolFromQuery(r, "failed", false)
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}

		all, err := store.All()
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		out := make([]*Record, 0, len(all))
		for _, rec := range all {
			if proto != "" && rec.Protocol != proto {
				continue
			}
			if failed && !rec.Failed() {
				continue
			}
			out = append(out, rec)
		}
		httputil.WriteJSON(w, r, http.StatusOK, out)
	}
}

func getRecord(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}

		rec, err := store.Get(id)
		switch {
		case errors.Cause(err) == ErrRecordNotFound:
			httputil.WriteJSON(w, r, http.StatusNotFound, err)
		case err != nil:
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
		default:
			httputil.WriteJSON(w, r, http.StatusOK, rec)
		}
	}
}
