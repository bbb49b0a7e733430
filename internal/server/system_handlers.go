package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/astrolabe-io/astrolabe/internal/database"
	"github.com/astrolabe-io/astrolabe/internal/di"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
	routegraph "github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// SystemHandlers serves operator-facing status endpoints
type SystemHandlers struct {
	container *di.Container
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(c *di.Container, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		container: c,
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// StatusResponse is the full system status snapshot
type StatusResponse struct {
	Status        string                `json:"status"`
	Network       string                `json:"network"`
	HorizonURL    string                `json:"horizonUrl"`
	UptimeSeconds float64               `json:"uptimeSeconds"`
	StartedAt     time.Time             `json:"startedAt"`
	Graph         routegraph.Stats      `json:"graph"`
	Resolver      routing.ResolverStats `json:"resolver"`
	Cache         routing.CacheStats    `json:"cache"`
	Registry      RegistryStatus        `json:"registry"`
	Runtime       RuntimeStatus         `json:"runtime"`
	Host          HostStatus            `json:"host"`
	Subscribers   int                   `json:"eventSubscribers"`
}

// RegistryStatus summarizes registry contents
type RegistryStatus struct {
	Assets  int `json:"assets"`
	Anchors int `json:"anchors"`
	Quotes  int `json:"quotes"`
}

// RuntimeStatus summarizes the Go runtime
type RuntimeStatus struct {
	GoVersion   string `json:"goVersion"`
	Goroutines  int    `json:"goroutines"`
	HeapAllocMB uint64 `json:"heapAllocMb"`
	NumGC       uint32 `json:"numGc"`
}

// HostStatus summarizes host resource usage
type HostStatus struct {
	CPUPercent      float64 `json:"cpuPercent"`
	MemUsedPercent  float64 `json:"memUsedPercent"`
	DiskUsedPercent float64 `json:"diskUsedPercent"`
}

// DatabaseStatsResponse reports per-database file statistics
type DatabaseStatsResponse struct {
	Databases   []DatabaseInfo `json:"databases"`
	LastChecked time.Time      `json:"lastChecked"`
}

// DatabaseInfo describes one database file
type DatabaseInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"sizeMb"`
	WALSizeMB     float64 `json:"walSizeMb"`
	PageCount     int64   `json:"pageCount"`
	FreelistCount int64   `json:"freelistCount"`
}

// Status returns the full system status
// GET /api/system/status
func (h *SystemHandlers) Status(w http.ResponseWriter, r *http.Request) {
	c := h.container

	resp := StatusResponse{
		Status:        "ok",
		Network:       c.Config.NetworkPassphrase,
		HorizonURL:    c.Config.HorizonURL,
		UptimeSeconds: time.Since(c.StartedAt).Seconds(),
		StartedAt:     c.StartedAt,
		Graph:         c.Graph.Stats(),
		Resolver:      c.RouteService.Stats(),
		Cache:         c.RouteCache.Stats(),
		Runtime:       h.runtimeStatus(),
		Host:          h.hostStatus(),
		Subscribers:   c.Bus.SubscriberCount(),
	}

	if n, err := c.AssetService.Count(); err == nil {
		resp.Registry.Assets = n
	} else {
		h.log.Warn().Err(err).Msg("Failed to count assets")
	}
	if n, err := c.AnchorService.Count(); err == nil {
		resp.Registry.Anchors = n
	} else {
		h.log.Warn().Err(err).Msg("Failed to count anchors")
	}
	if n, err := c.QuoteService.Count(); err == nil {
		resp.Registry.Quotes = n
	} else {
		h.log.Warn().Err(err).Msg("Failed to count quotes")
	}

	h.writeJSON(w, resp)
}

// DatabaseStats returns SQLite file statistics for both databases
// GET /api/system/database/stats
func (h *SystemHandlers) DatabaseStats(w http.ResponseWriter, r *http.Request) {
	resp := DatabaseStatsResponse{LastChecked: time.Now().UTC()}

	for _, db := range []*database.DB{h.container.RegistryDB, h.container.CacheDB} {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("db", db.Name()).Msg("Failed to get database stats")
			continue
		}
		resp.Databases = append(resp.Databases, DatabaseInfo{
			Name:          db.Name(),
			Path:          db.Path(),
			SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		})
	}

	h.writeJSON(w, resp)
}

func (h *SystemHandlers) runtimeStatus() RuntimeStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return RuntimeStatus{
		GoVersion:   runtime.Version(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: ms.HeapAlloc / 1024 / 1024,
		NumGC:       ms.NumGC,
	}
}

// hostStatus samples host resource usage. A 100ms CPU window keeps the
// endpoint responsive for pollers.
func (h *SystemHandlers) hostStatus() HostStatus {
	status := HostStatus{}

	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		status.CPUPercent = pct[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to sample CPU usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemUsedPercent = vm.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to sample memory usage")
	}

	if du, err := disk.Usage(h.container.Config.DataDir); err == nil {
		status.DiskUsedPercent = du.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to sample disk usage")
	}

	return status
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
