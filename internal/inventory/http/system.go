package http

import (
	"net/http"
	"time"

	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/httpx"
)

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	Database string `json:"database,omitempty"`
}

// LivezHandler always answers 200 while the process runs.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler additionally checks the database connection.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Uptime:   time.Since(startTime).String(),
			Version:  version,
			Database: "ok",
		}
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "error: " + err.Error()
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, resp)
	}
}
