// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package admin

import (
	"net/http"
	"time"

	"github.com/evrhart/socrt/internal/soc/registry"
)

// serviceView is the JSON shape of one registry.KnownServer entry.
type serviceView struct {
	InterfaceID string `json:"interface_id"`
	Major       uint32 `json:"major"`
	Minor       uint32 `json:"minor"`
	Instance    string `json:"instance"`
}

func toServiceView(ks registry.KnownServer) serviceView {
	return serviceView{
		InterfaceID: ks.Interface.ID,
		Major:       ks.Interface.Version.Major,
		Minor:       ks.Interface.Version.Minor,
		Instance:    string(ks.Instance),
	}
}

// livez handles the liveness probe: 200 as long as the process can answer
// HTTP at all, independent of anything the runtime is doing.
//
// @Summary Liveness probe
// @Description Returns 200 if the process is alive.
// @Tags Health
// @Produce json
// @Success 200 {object} envelope
// @Router /livez [get]
func (h *Handler) livez(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// readyz handles the readiness probe: 200 once the registry is constructed
// and able to answer a snapshot query.
//
// @Summary Readiness probe
// @Description Returns 200 once the runtime's registry can be queried.
// @Tags Health
// @Produce json
// @Success 200 {object} envelope
// @Router /readyz [get]
func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	_ = h.registry.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"uptime": time.Since(h.startTime).String(),
	})
}

// listServices handles a snapshot of every currently occupied server slot.
//
// @Summary List known services
// @Description Returns every interface/instance pair with an enabled server.
// @Tags Services
// @Produce json
// @Success 200 {object} envelope{data=[]serviceView}
// @Router /api/v1/services [get]
func (h *Handler) listServices(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.registry.Snapshot()
	views := make([]serviceView, 0, len(snapshot))
	for _, ks := range snapshot {
		views = append(views, toServiceView(ks))
	}
	respondJSON(w, http.StatusOK, views)
}
