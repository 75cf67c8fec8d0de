package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/events"
	"github.com/aristath/minerva/internal/reliability"
	"github.com/aristath/minerva/internal/scheduler"
)

// JobRunner lists and triggers scheduled jobs.
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) error
}

// BackupRunner creates and lists off-site backups.
type BackupRunner interface {
	RunBackup(ctx context.Context) (*reliability.BackupMetadata, error)
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// HostStats describes the machine the server runs on.
type HostStats struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	DiskPercent      float64 `json:"disk_percent"`
	DiskFreeBytes    uint64  `json:"disk_free_bytes"`
	DiskTotalBytes   uint64  `json:"disk_total_bytes"`
}

// StatusResponse is returned by GET /system/status.
type StatusResponse struct {
	Status           string              `json:"status"`
	StartedAt        time.Time           `json:"started_at"`
	UptimeSeconds    int64               `json:"uptime_seconds"`
	Host             HostStats           `json:"host"`
	Database         *database.Stats     `json:"database,omitempty"`
	Jobs             []scheduler.JobInfo `json:"jobs"`
	EventSubscribers int                 `json:"event_subscribers"`
	BackupsEnabled   bool                `json:"backups_enabled"`
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	db          *database.DB
	jobs        JobRunner
	bus         *events.Bus
	backups     BackupRunner
	dataDir     string
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates the system handlers. Backups are reported as
// unavailable until SetBackups is called.
func NewSystemHandlers(db *database.DB, jobs JobRunner, bus *events.Bus, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:          db,
		jobs:        jobs,
		bus:         bus,
		dataDir:     dataDir,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
}

// SetBackups enables the backup endpoints.
func (h *SystemHandlers) SetBackups(b BackupRunner) {
	h.backups = b
}

// RegisterRoutes registers the staff-only system routes.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Use(auth.RequireStaff)

		r.Get("/status", h.HandleStatus)
		r.Get("/jobs", h.HandleJobs)
		r.Post("/jobs/{name}", h.HandleRunJob)
		r.Get("/backups", h.HandleListBackups)
		r.Post("/backups", h.HandleCreateBackup)
	})
}

// HandleStatus returns uptime, host and database statistics and the job list.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:         "healthy",
		StartedAt:      h.startupTime,
		UptimeSeconds:  int64(time.Since(h.startupTime).Seconds()),
		Host:           h.hostStats(r.Context()),
		Jobs:           h.jobs.Jobs(),
		BackupsEnabled: h.backups != nil,
	}
	if h.bus != nil {
		resp.EventSubscribers = h.bus.SubscriberCount()
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
		resp.Status = "degraded"
	} else {
		resp.Database = stats
	}

	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// hostStats reads CPU, memory and disk usage. Failures leave zero values.
func (h *SystemHandlers) hostStats(ctx context.Context) HostStats {
	var out HostStats

	// A short sample keeps the endpoint responsive
	if pct, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(pct) > 0 {
		out.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		out.MemoryPercent = vm.UsedPercent
		out.MemoryUsedBytes = vm.Used
		out.MemoryTotalBytes = vm.Total
	}

	if du, err := disk.UsageWithContext(ctx, h.dataDir); err != nil {
		h.log.Warn().Err(err).Str("path", h.dataDir).Msg("Failed to get disk usage")
	} else {
		out.DiskPercent = du.UsedPercent
		out.DiskFreeBytes = du.Free
		out.DiskTotalBytes = du.Total
	}

	return out
}

// HandleJobs lists the registered jobs.
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, h.jobs.Jobs())
}

// HandleRunJob runs a job once, outside its schedule.
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.log.Info().Str("job", name).Msg("Manual job run triggered")

	if err := h.jobs.RunNow(r.Context(), name); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Job " + name + " completed",
	})
}

// HandleListBackups lists the backups stored in the bucket.
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		apiutil.WriteDetail(w, http.StatusServiceUnavailable, "Backups are not configured.")
		return
	}
	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// HandleCreateBackup uploads a backup now.
func (h *SystemHandlers) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		apiutil.WriteDetail(w, http.StatusServiceUnavailable, "Backups are not configured.")
		return
	}
	meta, err := h.backups.RunBackup(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteCreated(w, "Backup created", meta)
}
