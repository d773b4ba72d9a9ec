package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agencyhub/api/internal/kanban"
	"agencyhub/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	rc, ok := s.requireRequestContext(w, r)
	if !ok {
		return
	}

	id, rest := parts[2], parts[3:]
	switch parts[1] {
	case "subaccounts":
		s.handleSubAccount(w, r, rc, id, rest)
	case "pipelines":
		s.handlePipeline(w, r, rc, id, rest)
	case "lanes":
		s.handleLane(w, r, rc, id, rest)
	case "tickets":
		s.handleTicket(w, r, rc, id, rest)
	case "tags":
		if len(rest) == 0 && r.Method == http.MethodDelete {
			s.writeResult(w, r, map[string]any{"ok": true}, s.service.DeleteTag(r.Context(), rc, id))
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case "contacts":
		if len(rest) == 0 && r.Method == http.MethodDelete {
			s.writeResult(w, r, map[string]any{"ok": true}, s.service.DeleteContact(r.Context(), rc, id))
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Checks(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSubAccount(w http.ResponseWriter, r *http.Request, rc RequestContext, subAccountID string, rest []string) {
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	ctx := r.Context()

	switch {
	case rest[0] == "pipelines" && r.Method == http.MethodGet:
		items, err := s.service.ListPipelines(ctx, rc, subAccountID)
		s.writeResult(w, r, map[string]any{"pipelines": items}, err)
	case rest[0] == "pipelines" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if !readBody(w, r, &body) {
			return
		}
		pipeline, err := s.service.CreatePipeline(ctx, rc, subAccountID, body.Name)
		s.writeCreated(w, r, pipeline, err)
	case rest[0] == "tags" && r.Method == http.MethodGet:
		items, err := s.service.ListTags(ctx, rc, subAccountID)
		s.writeResult(w, r, map[string]any{"tags": items}, err)
	case rest[0] == "tags" && r.Method == http.MethodPost:
		var body struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		}
		if !readBody(w, r, &body) {
			return
		}
		tag, err := s.service.CreateTag(ctx, rc, subAccountID, body.Name, body.Color)
		s.writeCreated(w, r, tag, err)
	case rest[0] == "contacts" && r.Method == http.MethodGet:
		items, err := s.service.ListContacts(ctx, rc, subAccountID)
		s.writeResult(w, r, map[string]any{"contacts": items}, err)
	case rest[0] == "contacts" && r.Method == http.MethodPost:
		var body CreateContactInput
		if !readBody(w, r, &body) {
			return
		}
		contact, err := s.service.CreateContact(ctx, rc, subAccountID, body)
		s.writeCreated(w, r, contact, err)
	case rest[0] == "team" && r.Method == http.MethodGet:
		items, err := s.service.ListTeamMembers(ctx, rc, subAccountID)
		s.writeResult(w, r, map[string]any{"members": items}, err)
	case rest[0] == "notifications" && r.Method == http.MethodGet:
		items, err := s.service.ListNotifications(ctx, rc, subAccountID, queryInt(r, "limit", 50))
		s.writeResult(w, r, map[string]any{"notifications": items}, err)
	case rest[0] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query()
		response, err := s.service.Search(ctx, rc, subAccountID, query.Get("q"), query.Get("type"), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
		s.writeResult(w, r, response, err)
	case isKnown(rest[0], "pipelines", "tags", "contacts", "team", "notifications", "search"):
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePipeline(w http.ResponseWriter, r *http.Request, rc RequestContext, pipelineID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			detail, err := s.service.GetPipelineDetails(ctx, rc, pipelineID)
			s.writeResult(w, r, detail, err)
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if !readBody(w, r, &body) {
				return
			}
			pipeline, err := s.service.RenamePipeline(ctx, rc, pipelineID, body.Name)
			s.writeResult(w, r, pipeline, err)
		case http.MethodDelete:
			s.writeResult(w, r, map[string]any{"ok": true}, s.service.DeletePipeline(ctx, rc, pipelineID))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "lanes" && r.Method == http.MethodPost {
		var body struct {
			Name string `json:"name"`
		}
		if !readBody(w, r, &body) {
			return
		}
		lane, err := s.service.AppendLane(ctx, rc, pipelineID, body.Name)
		s.writeCreated(w, r, lane, err)
		return
	}

	if len(rest) == 2 && rest[0] == "lanes" && rest[1] == "reorder" && r.Method == http.MethodPost {
		var body struct {
			LaneIDs []string `json:"laneIds"`
		}
		if !readBody(w, r, &body) {
			return
		}
		lanes, err := s.service.ReorderLanes(ctx, rc, pipelineID, body.LaneIDs)
		s.writeResult(w, r, map[string]any{"lanes": lanes}, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLane(w http.ResponseWriter, r *http.Request, rc RequestContext, laneID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if !readBody(w, r, &body) {
				return
			}
			lane, err := s.service.RenameLane(ctx, rc, laneID, body.Name)
			s.writeResult(w, r, lane, err)
		case http.MethodDelete:
			s.writeResult(w, r, map[string]any{"ok": true}, s.service.DeleteLane(ctx, rc, laneID))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "value" && r.Method == http.MethodGet {
		value, err := s.service.LaneValue(ctx, rc, laneID)
		s.writeResult(w, r, value, err)
		return
	}

	if len(rest) == 1 && rest[0] == "tickets" && r.Method == http.MethodPost {
		var body TicketInput
		if !readBody(w, r, &body) {
			return
		}
		ticket, err := s.service.AppendTicket(ctx, rc, laneID, body)
		s.writeCreated(w, r, ticket, err)
		return
	}

	if len(rest) == 2 && rest[0] == "tickets" && rest[1] == "reorder" && r.Method == http.MethodPost {
		var body struct {
			TicketIDs []string `json:"ticketIds"`
		}
		if !readBody(w, r, &body) {
			return
		}
		tickets, err := s.service.ReorderTickets(ctx, rc, laneID, body.TicketIDs)
		s.writeResult(w, r, map[string]any{"tickets": tickets}, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTicket(w http.ResponseWriter, r *http.Request, rc RequestContext, ticketID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPut:
			var body TicketInput
			if !readBody(w, r, &body) {
				return
			}
			ticket, err := s.service.UpdateTicket(ctx, rc, ticketID, body)
			s.writeResult(w, r, ticket, err)
		case http.MethodDelete:
			s.writeResult(w, r, map[string]any{"ok": true}, s.service.DeleteTicket(ctx, rc, ticketID))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "move" && r.Method == http.MethodPost {
		var body MoveTicketInput
		if !readBody(w, r, &body) {
			return
		}
		ticket, err := s.service.MoveTicket(ctx, rc, ticketID, body)
		s.writeResult(w, r, ticket, err)
		return
	}

	if len(rest) == 1 && rest[0] == "tags" {
		switch r.Method {
		case http.MethodGet:
			tags, err := s.service.TicketTags(ctx, rc, ticketID)
			s.writeResult(w, r, map[string]any{"tags": tags}, err)
		case http.MethodPut:
			var body struct {
				TagIDs []string `json:"tagIds"`
			}
			if !readBody(w, r, &body) {
				return
			}
			if body.TagIDs == nil {
				body.TagIDs = []string{}
			}
			tags, err := s.service.SetTicketTags(ctx, rc, ticketID, body.TagIDs)
			s.writeResult(w, r, map[string]any{"tags": tags}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireRequestContext(w http.ResponseWriter, r *http.Request) (RequestContext, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return RequestContext{}, false
	}
	rc, err := s.service.RequestContextFromToken(token)
	if err != nil {
		if isAuthError(err) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return RequestContext{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return RequestContext{}, false
	}
	return rc, true
}

func (s *HTTPServer) writeResult(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) writeCreated(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

// fail maps err to a response. Unexpected errors are logged and reported
// generically so storage details never reach the client.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			message = "Could not save"
		}
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		slog.InfoContext(ctx, "request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func isKnown(segment string, names ...string) bool {
	for _, name := range names {
		if segment == name {
			return true
		}
	}
	return false
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, kanban.ErrInvalidOrder):
		return http.StatusUnprocessableEntity, "INVALID_ORDER", err.Error(), nil
	case errors.Is(err, kanban.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, kanban.ErrDuplicateTag), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "ALREADY_EXISTS", "Already exists", nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case isAuthError(err):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
