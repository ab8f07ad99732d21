package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/livelearn/internal/generate"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

const (
	defaultLectureLimit = 20
	maxLectureLimit     = 100
	defaultVideoLimit   = 5
	maxVideoLimit       = 25

	// maxRequestBody caps JSON request bodies.
	maxRequestBody = 1 << 20
)

// simulationRequest is the body of POST /api/simulations.
type simulationRequest struct {
	Concept     string `json:"concept"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// simulationResponse answers POST /api/simulations.
type simulationResponse struct {
	Concept string `json:"concept"`
	Code    string `json:"code"`
	Cached  bool   `json:"cached"`
}

type videosResponse struct {
	Query  string        `json:"query"`
	Videos []types.Video `json:"videos"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// listLectures serves GET /api/lectures?limit=.
func (a *App) listLectures(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultLectureLimit, maxLectureLimit)
	if !ok {
		return
	}
	if a.persist == nil {
		writeStoreError(w, r, store.ErrUnavailable)
		return
	}
	lectures, err := a.persist.ListLectures(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if lectures == nil {
		lectures = []types.LectureSummary{}
	}
	writeJSON(w, http.StatusOK, lectures)
}

// getLecture serves GET /api/lectures/{id}.
func (a *App) getLecture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a.persist == nil {
		writeStoreError(w, r, store.ErrUnavailable)
		return
	}
	detail, err := a.persist.GetLecture(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// generateSimulation serves POST /api/simulations through the simulation
// cache.
func (a *App) generateSimulation(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	req.Concept = strings.TrimSpace(req.Concept)
	if req.Concept == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "concept is required"})
		return
	}

	code, hit, err := a.simulations.Generate(r.Context(), generate.SimulationParams{
		Concept:     req.Concept,
		Description: req.Description,
		Context:     req.Context,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("app: on-demand simulation failed", "concept", req.Concept, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "simulation generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, simulationResponse{Concept: req.Concept, Code: code, Cached: hit})
}

// searchVideos serves GET /api/videos/search?q=&limit=.
func (a *App) searchVideos(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "q is required"})
		return
	}
	limit, ok := queryLimit(w, r, defaultVideoLimit, maxVideoLimit)
	if !ok {
		return
	}
	if a.providers.Media == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no media provider configured"})
		return
	}

	videos, err := a.providers.Media.Search(r.Context(), q, limit)
	if err != nil {
		observe.Logger(r.Context()).Warn("app: video search failed", "query", q, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "video search failed"})
		return
	}
	if len(videos) > limit {
		videos = videos[:limit]
	}
	for i := range videos {
		videos[i].ContextConcept = q
		videos[i].Status = types.StatusReady
	}
	if videos == nil {
		videos = []types.Video{}
	}
	writeJSON(w, http.StatusOK, videosResponse{Query: q, Videos: videos})
}

// queryLimit parses the optional limit parameter, clamping it to max. It
// writes a 400 and returns false when the value is not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		return 0, false
	}
	return min(n, max), true
}

// writeStoreError maps persistence failures: a missing lecture is 404,
// everything else is 503.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "lecture not found"})
	case errors.Is(err, store.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "persistence is not configured"})
	default:
		observe.Logger(r.Context()).Error("app: persistence read failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "persistence unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
