package api

import (
	"encoding/json"

	"github.com/bc-dunia/hostpulse/internal/storage"
)

// ErrorResponse is the body of every unsuccessful response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// MissingFields lists the required snapshot fields absent from an upload.
	MissingFields []string `json:"missing_fields,omitempty"`
}

// UploadResponse is returned when a snapshot has been stored.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
}

// QueryResponse carries the record set for one (ip, date) key. Data is null
// when nothing was found.
type QueryResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    []json.RawMessage `json:"data"`
}

// ListResponse enumerates every stored key.
type ListResponse struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	AvailableData []storage.DataEntry `json:"available_data"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// EndpointInfo describes one route in the index response.
type EndpointInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// IndexResponse is the self-description returned by GET /.
type IndexResponse struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Endpoints []EndpointInfo `json:"endpoints"`
}

var endpoints = []EndpointInfo{
	{Method: "POST", Path: "/upload", Description: "Upload a host snapshot"},
	{Method: "GET", Path: "/query?ip=<IP>&date=<YYYY-MM-DD>", Description: "Query snapshots for a host and day"},
	{Method: "GET", Path: "/list", Description: "List available data files"},
	{Method: "GET", Path: "/health", Description: "Health check"},
}
