// Package server implements the HTTP routing over the collection.
package server

import (
	"net/http"

	"github.com/maruel/typeimage/internal/server/handlers"
)

// NewRouter creates and configures the HTTP router.
//
// Transient object URLs are served at /blob/<token> while they are live.
func NewRouter(svc *handlers.Services) http.Handler {
	mux := &http.ServeMux{}

	mux.Handle("GET /healthz", Wrap(svc.Health))

	mux.Handle("GET /api/words", Wrap(svc.ListWords))
	mux.Handle("GET /api/words/{id}", Wrap(svc.GetWord))
	mux.Handle("DELETE /api/words/{id}", Wrap(svc.DeleteWord))
	mux.Handle("GET /api/categories", Wrap(svc.ListCategories))
	mux.Handle("GET /api/settings", Wrap(svc.GetSettings))

	mux.HandleFunc("GET /api/images/{id}", svc.ServeImage)
	mux.Handle("POST /api/images/{id}/url", Wrap(svc.ImageURL))
	mux.Handle("GET /blob/{token}", svc.Blobs.URLs())
	mux.HandleFunc("DELETE /blob/{token}", svc.RevokeURL)

	mux.HandleFunc("GET /api/backup", svc.DownloadBackup)
	mux.Handle("GET /api/autobackup", Wrap(svc.AutoBackup))
	mux.Handle("POST /api/autobackup/run", Wrap(svc.RunAutoBackup))

	return LogRequests(mux)
}
