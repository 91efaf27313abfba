package handlers

import (
	"net/http"
	"strconv"

	"github.com/gluk-w/ftpgate/internal/database"
	"github.com/gluk-w/ftpgate/internal/ftpproxy"
)

// RefreshLog is set from main.go during init.
var RefreshLog *database.RefreshLog

const maxRefreshListLimit = 500

// ListRefreshes returns recent refresher runs, newest first. ?limit=N caps the count.
func ListRefreshes(w http.ResponseWriter, r *http.Request) {
	if RefreshLog == nil {
		writeError(w, http.StatusServiceUnavailable, "Refresh history not initialized")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRefreshListLimit)
	}
	runs, err := RefreshLog.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load refresh history")
		return
	}
	writeSuccess(w, map[string]interface{}{"refreshes": runs})
}

// TriggerRefresh runs one refresh now and reports the node count.
func TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	tree, err := FTPMgr.RefreshNow(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeSuccess(w, map[string]int{"nodes": ftpproxy.CountNodes(tree)})
}
