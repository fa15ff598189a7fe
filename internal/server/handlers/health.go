package handlers

import "context"

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Version string `json:"version,omitempty"`
}

// Health returns the health status of the server.
func (s *Services) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Backend: string(s.Blobs.Backend()), Version: s.Version}, nil
}
