package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ernie/fortress-ops/internal/ops"
	"github.com/ernie/fortress-ops/internal/registry"
)

const defaultLeaderboardLimit = 25

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimit reads the optional ?limit= query parameter
func parseLimit(req *http.Request) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return defaultLeaderboardLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 100 {
		return defaultLeaderboardLimit
	}
	return limit
}

// ServerInfo is the public view of a registered server
type ServerInfo struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	Glyph         string `json:"glyph"`
	Aggregated    bool   `json:"aggregated"`
	Schedulable   bool   `json:"schedulable"`
	CfgControlled bool   `json:"cfg_controlled"`
}

// handleGetServers lists all registered servers
func (r *Router) handleGetServers(w http.ResponseWriter, req *http.Request) {
	handles := registry.SortByGlyph(r.reg.All())

	servers := make([]ServerInfo, len(handles))
	for i, h := range handles {
		servers[i] = ServerInfo{
			Address:       h.Desc.Address,
			Name:          h.Desc.Name,
			Glyph:         h.Desc.Glyph,
			Aggregated:    h.Desc.Aggregated,
			Schedulable:   h.Desc.Schedulable,
			CfgControlled: h.Desc.CfgControlled,
		}
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServerStatus returns the live (possibly cached) game state of
// one server
func (r *Router) handleGetServerStatus(w http.ResponseWriter, req *http.Request) {
	handle, err := r.reg.Lookup(req.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	state, err := handle.Rcon.Status(req.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// CommandRequest is the request body for command endpoints
type CommandRequest struct {
	Command string `json:"command"`
}

// handleFanOut runs a command on every aggregated server and returns the
// combined per-server report
func (r *Router) handleFanOut(w http.ResponseWriter, req *http.Request) {
	var body CommandRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	report := ops.FanOut(req.Context(), r.reg.Aggregated(), body.Command)
	writeJSON(w, http.StatusOK, map[string]string{"report": report})
}

// handleRconCommand runs a command on a single server
func (r *Router) handleRconCommand(w http.ResponseWriter, req *http.Request) {
	handle, err := r.reg.Lookup(req.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown server")
		return
	}

	var body CommandRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	reply, err := handle.Rcon.Run(req.Context(), body.Command)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handleTopSeeders returns the seeding leaderboard
func (r *Router) handleTopSeeders(w http.ResponseWriter, req *http.Request) {
	entries, err := r.store.TopSeeders(req.Context(), parseLimit(req))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleTopDominations returns the domination ledger ordered by magnitude
func (r *Router) handleTopDominations(w http.ResponseWriter, req *http.Request) {
	entries, err := r.store.TopDominations(req.Context(), parseLimit(req))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// LinkCodeRequest is the request body for issuing a link code
type LinkCodeRequest struct {
	ExternalID string `json:"external_id"`
}

// LinkCodeResponse is the response for a freshly issued link code
type LinkCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleCreateLinkCode issues a short-lived code binding an external
// account identity
func (r *Router) handleCreateLinkCode(w http.ResponseWriter, req *http.Request) {
	var body LinkCodeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	code, err := r.store.CreateLinkCode(req.Context(), body.ExternalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create link code")
		return
	}

	writeJSON(w, http.StatusOK, LinkCodeResponse{
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt(),
	})
}

// handleHealth is a simple health check endpoint
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": r.wsHub.ClientCount(),
	})
}
