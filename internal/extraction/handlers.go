package extraction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/scanning"
)

const (
	maxRequestBytes = 1 << 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// extractRequest is the body of POST /extract-bill-data
type extractRequest struct {
	Document string `json:"document"`
}

// extractResponse is the record plus the model's token usage
type extractResponse struct {
	*bill.Record
	TokenUsage scanning.TokenUsage `json:"token_usage"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// WriteFailure writes the stage error body for err
func WriteFailure(w http.ResponseWriter, err error) {
	f := Classify(err)
	if f.Status >= http.StatusInternalServerError {
		slog.Error("Extraction failed", "stage", f.Stage, "kind", f.Kind, "error", err)
	}
	writeJSON(w, f.Status, f)
}

// handleExtract extracts a bill from the document URL in the request body
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "xlsx" {
		WriteFailure(w, &RequestError{Kind: "invalid_body", Message: "format must be json or xlsx"})
		return
	}

	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		msg := "request body must be a JSON object with a document URL"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body is too large"
		}
		WriteFailure(w, &RequestError{Kind: "invalid_body", Message: msg})
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		WriteFailure(w, &RequestError{Kind: "invalid_body", Message: "document is required"})
		return
	}

	result, err := s.service.Extract(r.Context(), req.Document)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	w.Header().Set("X-Request-ID", result.RequestID)

	if format == "xlsx" {
		data, err := bill.WriteXLSX(result.Record)
		if err != nil {
			WriteFailure(w, err)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="bill.xlsx"`)
		if _, err := w.Write(data); err != nil {
			slog.Error("Error writing workbook", "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Record:     result.Record,
		TokenUsage: result.Usage,
	})
}

var (
	errUnauthorized = &RequestError{Kind: "unauthorized", Message: "valid credentials are required", Status: http.StatusUnauthorized}
	errNotFound     = &RequestError{Kind: "not_found", Message: "no such route", Status: http.StatusNotFound}
)

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	WriteFailure(w, &RequestError{Kind: "method_not_allowed", Message: "method must be one of " + allow, Status: http.StatusMethodNotAllowed})
}

// handleExtractMethod answers the extract route for methods other than POST
func (s *Server) handleExtractMethod(w http.ResponseWriter, r *http.Request) {
	methodNotAllowed(w, "POST, OPTIONS")
}

// handleNotFound answers every unknown route
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteFailure(w, errNotFound)
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
