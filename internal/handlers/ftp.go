package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gluk-w/ftpgate/internal/ftpproxy"
	"github.com/gluk-w/ftpgate/internal/logutil"
)

// FTPMgr is set from main.go during init.
var FTPMgr *ftpproxy.Manager

type connectionInfo struct {
	Key     string                   `json:"key"`
	State   ftpproxy.ConnectionState `json:"state"`
	Metrics *ftpproxy.SessionMetrics `json:"metrics,omitempty"`
}

type connectionStatus struct {
	connectionInfo
	Transitions []ftpproxy.StateTransition `json:"transitions"`
}

type cdRequest struct {
	Dir string `json:"dir"`
}

type movRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	File string `json:"file"`
}

type cmdRequest struct {
	Command string `json:"command"`
}

func managerReady(w http.ResponseWriter) bool {
	if FTPMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "FTP manager not initialized")
		return false
	}
	return true
}

func connectionKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "Connection key is required")
		return "", false
	}
	return key, true
}

func info(key string) connectionInfo {
	return connectionInfo{
		Key:     key,
		State:   FTPMgr.ConnectionState(key),
		Metrics: FTPMgr.SessionMetrics(key),
	}
}

// ListConnections returns every registered key with its state and metrics.
func ListConnections(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	keys := FTPMgr.Keys()
	out := make([]connectionInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, info(k))
	}
	writeSuccess(w, map[string]interface{}{"connections": out})
}

// Connect opens a session under {key}.
func Connect(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	if err := FTPMgr.Connect(r.Context(), key); err != nil {
		writeOpError(w, err)
		return
	}
	zap.L().Info("ftp connection opened via API", zap.String("key", logutil.SanitizeForLog(key)))
	writeSuccess(w, nil)
}

// Disconnect closes {key}'s session. Unknown keys succeed.
func Disconnect(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	FTPMgr.Disconnect(key)
	writeSuccess(w, nil)
}

// GetConnectionStatus returns {key}'s state and its recent transitions.
func GetConnectionStatus(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	transitions := FTPMgr.StateTransitions(key)
	if transitions == nil {
		transitions = []ftpproxy.StateTransition{}
	}
	writeSuccess(w, connectionStatus{connectionInfo: info(key), Transitions: transitions})
}

// ListDirectory lists {key}'s working directory, folders first.
func ListDirectory(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	nodes, err := FTPMgr.Ls(r.Context(), key)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if nodes == nil {
		nodes = []ftpproxy.Node{}
	}
	writeSuccess(w, map[string]interface{}{"files": nodes})
}

// WorkingDirectory reports {key}'s working directory.
func WorkingDirectory(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	cwd, err := FTPMgr.Pwd(r.Context(), key)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"path": cwd})
}

// ChangeDirectory handles {"dir": "..."}.
func ChangeDirectory(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	var req cdRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Dir == "" {
		writeError(w, http.StatusBadRequest, "dir is required")
		return
	}
	res, err := FTPMgr.Cd(r.Context(), key, req.Dir)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeSuccess(w, res)
}

// MoveFile handles {"from": "...", "to": "...", "file": "..."}.
func MoveFile(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	var req movRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.From == "" || req.To == "" || req.File == "" {
		writeError(w, http.StatusBadRequest, "from, to and file are required")
		return
	}
	res, err := FTPMgr.Mov(r.Context(), key, req.From, req.To, req.File)
	if err != nil {
		writeOpError(w, err)
		return
	}
	zap.L().Info("ftp file moved",
		zap.String("key", logutil.SanitizeForLog(key)),
		zap.String("from", logutil.SanitizeForLog(req.From)),
		zap.String("to", logutil.SanitizeForLog(res.Path)))
	writeSuccess(w, res)
}

// RunCommand handles {"command": "..."}; the server reply is returned verbatim.
func RunCommand(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}
	var req cmdRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	res, err := FTPMgr.Cmd(r.Context(), key, req.Command)
	if err != nil {
		writeOpError(w, err)
		return
	}
	zap.L().Info("ftp command passed through",
		zap.String("key", logutil.SanitizeForLog(key)),
		zap.String("command", logutil.SanitizeForLog(req.Command)))
	writeSuccess(w, res)
}

// GetTree walks {key}'s session.
//
//	?cached=1  serve the cached tree, walking and closing {key} only when empty
//	?keep=1    walk without closing the session
//	(default)  walk, then close the session
func GetTree(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	key, ok := connectionKey(w, r)
	if !ok {
		return
	}

	var (
		tree ftpproxy.Tree
		err  error
	)
	q := r.URL.Query()
	switch {
	case q.Get("cached") == "1":
		tree, err = FTPMgr.TreeCached(r.Context(), key)
	case q.Get("keep") == "1":
		tree, err = FTPMgr.WalkSession(r.Context(), key)
	default:
		tree, err = FTPMgr.FetchTree(r.Context(), key)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	if tree == nil {
		tree = ftpproxy.Tree{}
	}
	writeSuccess(w, map[string]interface{}{"tree": tree})
}

// GetCachedTree serves the cached snapshot without touching any session.
func GetCachedTree(w http.ResponseWriter, r *http.Request) {
	if !managerReady(w) {
		return
	}
	snap, ok := FTPMgr.CachedSnapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "No tree has been cached yet")
		return
	}
	writeSuccess(w, map[string]interface{}{
		"tree":    snap.Tree,
		"takenAt": snap.TakenAt,
		"source":  snap.Source,
		"age":     time.Since(snap.TakenAt).Round(time.Second).String(),
	})
}
