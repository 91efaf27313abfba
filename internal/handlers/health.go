package handlers

import (
	"net/http"
	"strconv"

	"github.com/gluk-w/ftpgate/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	sessions := "0"
	treeStatus := "empty"
	if FTPMgr != nil {
		sessions = strconv.Itoa(len(FTPMgr.Keys()))
		if snap, ok := FTPMgr.CachedSnapshot(); ok {
			treeStatus = "cached at " + snap.TakenAt.UTC().Format("2006-01-02T15:04:05Z")
		}
	}

	status := "healthy"
	if dbStatus != "connected" || FTPMgr == nil {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":       status,
		"database":     dbStatus,
		"ftp_sessions": sessions,
		"tree":         treeStatus,
	})
}
