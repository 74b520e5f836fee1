package handlers

import (
	"net/http"
	"sync"
)

// DownloadStatus tracks finished exports for clients clearing a busy
// indicator. It serves as the session's completion callback and notifier.
type DownloadStatus struct {
	mu        sync.Mutex
	completed int
	failed    int
	lastError string
}

// Complete records one finished export attempt.
func (d *DownloadStatus) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed++
}

// Notify records a failed export.
func (d *DownloadStatus) Notify(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed++
	d.lastError = err.Error()
}

// DownloadStatusDTO is the response of GET /view/download.
type DownloadStatusDTO struct {
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

// Snapshot returns the current counts.
func (d *DownloadStatus) Snapshot() DownloadStatusDTO {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DownloadStatusDTO{Completed: d.completed, Failed: d.failed, LastError: d.lastError}
}

// Status handles GET /view/download.
func (d *DownloadStatus) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Snapshot())
}
