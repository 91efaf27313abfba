package handlers

import (
	"github.com/go-chi/chi/v5"
)

// MountFTP registers the FTP API under r, which main mounts at /api/v1.
func MountFTP(r chi.Router) {
	r.Route("/ftp", func(r chi.Router) {
		r.Get("/connections", ListConnections)
		r.Route("/connections/{key}", func(r chi.Router) {
			r.Post("/", Connect)
			r.Delete("/", Disconnect)
			r.Get("/status", GetConnectionStatus)
			r.Get("/ls", ListDirectory)
			r.Get("/pwd", WorkingDirectory)
			r.Post("/cd", ChangeDirectory)
			r.Post("/mov", MoveFile)
			r.Post("/cmd", RunCommand)
			r.Get("/tree", GetTree)
		})
		r.Get("/tree", GetCachedTree)
		r.Get("/refreshes", ListRefreshes)
		r.Post("/refreshes", TriggerRefresh)
	})
}
