package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSystem reports host and ledger health for the ops dashboard.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.startupTime).Seconds()),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		resp["cpu_percent"] = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory_percent"] = vm.UsedPercent
		resp["memory_used_mb"] = vm.Used / 1024 / 1024
	}

	if s.ledgerDB != nil {
		ledger := map[string]interface{}{
			"size_bytes": s.ledgerDB.SizeBytes(),
		}
		if err := s.ledgerDB.HealthCheck(r.Context()); err != nil {
			ledger["status"] = "unhealthy"
			ledger["error"] = err.Error()
		} else {
			ledger["status"] = "ok"
		}
		resp["ledger"] = ledger
	}

	s.writeJSON(w, http.StatusOK, resp)
}
