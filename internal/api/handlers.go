package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bc-dunia/hostpulse/internal/storage"
	"github.com/bc-dunia/hostpulse/internal/types"
)

const maxRequestBodySize = 10 * 1024 * 1024

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{Message: "Request must be JSON"})
		return
	}

	body, err := io.ReadAll(limitedBody(w, r))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, &ErrorResponse{
				Message: fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit),
			})
			return
		}
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{Message: "Failed to read request body"})
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{
			Message: fmt.Sprintf("Invalid JSON payload: %v", err),
		})
		return
	}

	if missing := missingFields(fields); len(missing) > 0 {
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{
			Message:       "Missing required fields: " + strings.Join(types.RequiredFields, ", "),
			MissingFields: missing,
		})
		return
	}

	start := time.Now()
	res, err := s.engine.Store(body)
	s.metrics.RecordStorage(r.Context(), "store", msSince(start), err == nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrInvalidKey) {
			status = http.StatusBadRequest
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to store snapshot")
		s.writeError(w, status, &ErrorResponse{
			Message: fmt.Sprintf("Error storing data: %v", err),
		})
		return
	}

	s.metrics.RecordIngest(r.Context(), res.IPAddress)
	zerolog.Ctx(r.Context()).Info().
		Str("ip_address", res.IPAddress).
		Str("date", res.Date).
		Int("records", res.Records).
		Msg("Data stored successfully")

	s.writeJSON(w, http.StatusOK, &UploadResponse{
		Success:  true,
		Message:  "Data received and stored successfully",
		FilePath: res.Path,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	ip := r.URL.Query().Get("ip")
	date := r.URL.Query().Get("date")
	if ip == "" {
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{Message: "IP address is required"})
		return
	}

	start := time.Now()
	res, err := s.engine.Query(ip, date)
	s.metrics.RecordStorage(r.Context(), "query", msSince(start), err == nil || errors.Is(err, storage.ErrNotFound))

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, &QueryResponse{
			Success: true,
			Message: fmt.Sprintf("Data retrieved for IP %s on %s", res.IPAddress, res.Date),
			Data:    res.Records,
		})
	case errors.Is(err, storage.ErrNotFound):
		if date == "" {
			date = s.engine.Today()
		}
		s.writeJSON(w, http.StatusNotFound, &QueryResponse{
			Success: false,
			Message: fmt.Sprintf("No data found for IP %s on %s", ip, date),
		})
	case errors.Is(err, storage.ErrInvalidDate):
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{
			Message: fmt.Sprintf("Invalid date format: %s. Use YYYY-MM-DD.", date),
		})
	case errors.Is(err, storage.ErrInvalidKey):
		s.writeError(w, http.StatusBadRequest, &ErrorResponse{
			Message: fmt.Sprintf("Invalid IP address: %s", ip),
		})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("ip_address", ip).Msg("Failed to query snapshots")
		s.writeError(w, http.StatusInternalServerError, &ErrorResponse{
			Message: fmt.Sprintf("Error querying data: %v", err),
		})
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	start := time.Now()
	entries, err := s.engine.List()
	s.metrics.RecordStorage(r.Context(), "list", msSince(start), err == nil)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to list data files")
		s.writeError(w, http.StatusInternalServerError, &ErrorResponse{
			Message: fmt.Sprintf("Error listing data: %v", err),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, &ListResponse{
		Success:       true,
		Message:       fmt.Sprintf("Found %d data files", len(entries)),
		AvailableData: entries,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, &HealthResponse{
		Status:  "ok",
		Message: "API server is running",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, &ErrorResponse{
			Message: fmt.Sprintf("Endpoint not found: %s", r.URL.Path),
		})
		return
	}
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, &IndexResponse{
		Name:      ServiceName,
		Version:   s.version,
		Endpoints: endpoints,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, errResp *ErrorResponse) {
	errResp.Success = false
	s.writeJSON(w, status, errResp)
}

func (s *Server) writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, &ErrorResponse{
		Message: "Method not allowed",
	})
}

// limitedBody returns a reader that limits the body size.
func limitedBody(w http.ResponseWriter, r *http.Request) io.Reader {
	return http.MaxBytesReader(w, r.Body, maxRequestBodySize)
}

// isJSONContentType accepts application/json and any +json media type.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// missingFields returns the required snapshot fields absent from fields, in
// report order.
func missingFields(fields map[string]json.RawMessage) []string {
	var missing []string
	for _, f := range types.RequiredFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
