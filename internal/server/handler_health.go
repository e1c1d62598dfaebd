package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

type resourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	Goroutines int     `json:"goroutines"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	GoVersion string         `json:"go_version"`
	Uptime    string         `json:"uptime"`
	Store     string         `json:"store"`
	Live      string         `json:"live"`
	Resources *resourceUsage `json:"resources,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     "unavailable",
		Live:      "disabled",
		Resources: s.resourceUsage(),
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	if s.live != nil {
		resp.Live = "idle"
		if id := s.live.RunID(); id != "" {
			resp.Live = id
		}
	}
	respondOK(w, reqID, resp)
}

// resourceUsage samples this process. It returns nil where the platform
// does not expose the counters.
func (s *Server) resourceUsage() *resourceUsage {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.logger.Debug("process stats unavailable", "error", err)
		return nil
	}
	usage := &resourceUsage{Goroutines: runtime.NumGoroutine()}
	if cpu, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		usage.MemoryRSS = mem.RSS
	}
	return usage
}
