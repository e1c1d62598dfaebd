package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "ossim API",
		Version:     "v1",
		Description: "Multilevel feedback queue scheduler simulator: recorded runs and live process table",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET"}, "List recorded runs. Accepts ?state=, ?limit=, ?offset="},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run summary"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Scheduler events of a run. Accepts ?kind=, ?limit=, ?offset="},
			{"/api/v1/runs/{id}/snapshot", []string{"GET"}, "Latest process table snapshot of a run"},
			{"/api/v1/live", []string{"GET"}, "Snapshot and last event of the run in this process"},
			{"/api/v1/live/stream", []string{"GET"}, "Server-Sent Events stream of live snapshots"},
			{"/api/v1/health", []string{"GET"}, "Server health, version and resource usage"},
		},
	})
}
