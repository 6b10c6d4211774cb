package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/klafs-vdc/internal/bridges/klafs"
)

// ActionResponse describes one catalog entry.
type ActionResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Mode        string `json:"mode,omitempty"`
	Temperature int    `json:"temperature,omitempty"`
	Humidity    int    `json:"humidity,omitempty"`
	PowerOn     bool   `json:"power_on"`
	PowerOff    bool   `json:"power_off"`
}

// SceneResponse is a saved scene with its mode spelled out.
type SceneResponse struct {
	klafs.Scene
	ModeName    string `json:"mode_name"`
	Temperature int    `json:"temperature"`
}

func toSceneResponse(sc klafs.Scene) SceneResponse {
	return SceneResponse{Scene: sc, ModeName: sc.Mode.String(), Temperature: sc.Temperature()}
}

// handleGetSauna returns the full bridge status.
func (s *Server) handleGetSauna(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sauna.Status())
}

// handleListSensors returns the sensor and binary input slots.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	st := s.sauna.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors":       st.Sensors,
		"binary_inputs": st.Binaries,
		"last_poll":     st.LastPoll,
	})
}

// handleListActions returns the action catalog in presentation order.
func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	actions := make([]ActionResponse, 0, len(klafs.Actions))
	for _, a := range klafs.Actions {
		resp := ActionResponse{
			ID:          a.ID,
			Title:       a.Title,
			Temperature: a.Temperature,
			Humidity:    a.Humidity,
			PowerOn:     a.PowerOn,
			PowerOff:    a.PowerOff,
		}
		if a.Mode != 0 {
			resp.Mode = a.Mode.String()
		}
		actions = append(actions, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"count":   len(actions),
	})
}

// handleExecuteAction runs a catalog action against the cloud.
func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := klafs.LookupAction(id); !ok {
		writeNotFound(w, "unknown action: "+id)
		return
	}

	s.logger.Info("action requested via API", "action", id, "subject", subjectFrom(r.Context()))
	if err := s.sauna.ExecuteAction(r.Context(), id); err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "executed",
		"action": id,
	})
}

// handleListScenes returns the scene table in insertion order.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.sauna.Scenes()
	resp := make([]SceneResponse, 0, len(scenes))
	for _, sc := range scenes {
		resp = append(resp, toSceneResponse(sc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenes": resp,
		"count":  len(resp),
	})
}

// handleGetScene returns one saved scene.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}
	for _, sc := range s.sauna.Scenes() {
		if sc.ID == id {
			writeJSON(w, http.StatusOK, toSceneResponse(sc))
			return
		}
	}
	writeNotFound(w, "scene not configured")
}

// handleCallScene reproduces a saved scene on the appliance.
func (s *Server) handleCallScene(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}

	s.logger.Info("scene call requested via API", "scene", id, "subject", subjectFrom(r.Context()))
	if err := s.sauna.ExecuteScene(r.Context(), id); err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "executed",
		"scene":  id,
	})
}

// handleSaveScene stores the current appliance state as a scene.
func (s *Server) handleSaveScene(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}

	s.logger.Info("scene save requested via API", "scene", id, "subject", subjectFrom(r.Context()))
	if err := s.sauna.SaveScene(r.Context(), s.sauna.Identity().DeviceDSUID, id); err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "saved",
		"scene":  id,
	})
}

// handleRequestPoll asks the poll loop to refresh at its next wake-up.
func (s *Server) handleRequestPoll(w http.ResponseWriter, _ *http.Request) {
	s.sauna.RequestPoll()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
}

// handleHistory returns recorded appliance states, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "state history not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read state history", "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// sceneID parses the {id} URL parameter as a non-negative scene number.
func sceneID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		writeBadRequest(w, "scene id must be a non-negative integer")
		return 0, false
	}
	return id, true
}
