package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/typeimage/internal/backup"
)

// AutoBackupRequest is empty.
type AutoBackupRequest struct{}

// AutoBackupStatus describes the scheduler.
type AutoBackupStatus struct {
	Enabled     bool   `json:"enabled"`
	State       string `json:"state"`
	Passes      int    `json:"passes"`
	Destination string `json:"destination,omitempty"`
}

// AutoBackup returns the scheduler status.
func (s *Services) AutoBackup(ctx context.Context, req *AutoBackupRequest) (*AutoBackupStatus, error) {
	return s.status(), nil
}

// RunAutoBackup runs a pass now.
func (s *Services) RunAutoBackup(ctx context.Context, req *AutoBackupRequest) (*AutoBackupStatus, error) {
	if err := s.Scheduler.Flush(ctx); err != nil {
		return nil, err
	}
	return s.status(), nil
}

func (s *Services) status() *AutoBackupStatus {
	st := &AutoBackupStatus{
		Enabled: s.Meta.AutoBackupEnabled(),
		State:   s.Scheduler.State().String(),
		Passes:  s.Scheduler.Passes(),
	}
	if d := s.Scheduler.Destination(); d != nil {
		st.Destination = d.Name()
	}
	return st
}

// DownloadBackup streams a fresh backup document as an attachment.
func (s *Services) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.Build(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build backup", "err", err)
		http.Error(w, "failed to build backup", http.StatusInternalServerError)
		return
	}
	name := "typeimage-backup-" + time.Now().Format("2006-01-02") + ".json"
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := backup.Write(w, doc); err != nil {
		slog.WarnContext(ctx, "Failed to send backup", "err", err)
	}
}
