// Package api exposes the chat service over HTTP.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JonMunkholm/WebDbChat/internal/chat"
	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/schema"
)

const (
	maxBodyBytes  = 64 << 10
	schemaTimeout = 60 * time.Second
)

// Chatter answers chat turns.
type Chatter interface {
	Handle(ctx context.Context, turn chat.Turn) chat.Result
}

// Schemas resolves and refreshes cached snapshots.
type Schemas interface {
	Resolve(ctx context.Context, key string, cfg engine.Config) (schema.Snapshot, error)
	Refresh(ctx context.Context, key string, cfg engine.Config) (schema.Snapshot, error)
}

// Connections looks up registered databases by name.
type Connections interface {
	Lookup(name string) (engine.Config, error)
	Names() []string
}

type Server struct {
	chat        Chatter
	schemas     Schemas
	connections Connections
	logger      *zap.Logger
}

func NewServer(chatter Chatter, schemas Schemas, connections Connections, logger *zap.Logger) *Server {
	return &Server{chat: chatter, schemas: schemas, connections: connections, logger: logging.OrNop(logger)}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/connections", s.handleConnections)
	r.Post("/chat", s.handleChat)
	r.Post("/chat/export", s.handleExportCSV)
	r.Get("/schema/{connection}", s.handleSchema)
	r.Post("/schema/{connection}/refresh", s.handleSchemaRefresh)
	return r
}

type chatRequest struct {
	Connection string `json:"connection"`
	Question   string `json:"question"`
}

type errorResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	ErrorKind apperrors.Kind `json:"errorKind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"connections": s.connections.Names()})
}

// decodeTurn reads a chat request. It writes the error response itself and
// reports false when the request cannot proceed.
func (s *Server) decodeTurn(w http.ResponseWriter, r *http.Request) (chat.Turn, bool) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, apperrors.New(apperrors.KindInvalidInput, "invalid JSON body"))
		return chat.Turn{}, false
	}
	if strings.TrimSpace(req.Connection) == "" {
		respondError(w, apperrors.New(apperrors.KindInvalidInput, "connection is required"))
		return chat.Turn{}, false
	}
	cfg, err := s.connections.Lookup(req.Connection)
	if err != nil {
		respondError(w, err)
		return chat.Turn{}, false
	}
	return chat.Turn{ConnectionID: req.Connection, Connection: cfg, Question: req.Question}, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	turn, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	res := s.chat.Handle(r.Context(), turn)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.ErrorKind)
	}
	respondJSON(w, status, res)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	turn, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	res := s.chat.Handle(r.Context(), turn)
	if !res.Success {
		respondJSON(w, statusFor(res.ErrorKind), res)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=export-"+time.Now().UTC().Format("2006-01-02")+".csv")

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()
	if res.Result == nil {
		return
	}
	if err := csvWriter.Write(res.Result.Columns); err != nil {
		return
	}
	for _, row := range res.Result.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			if !v.IsNull() {
				record[i] = v.String()
			}
		}
		if err := csvWriter.Write(record); err != nil {
			s.logger.Warn("csv export aborted", zap.String("turn_id", res.TurnID), zap.Error(err))
			return
		}
	}
}

type schemaResponse struct {
	Connection    string                `json:"connection"`
	Tables        []schema.Table        `json:"tables"`
	Relationships []schema.Relationship `json:"relationships"`
	TableCount    int                   `json:"tableCount"`
	Text          string                `json:"text"`
	LastRefresh   string                `json:"lastRefresh"`
}

func newSchemaResponse(name string, snap schema.Snapshot) schemaResponse {
	tables := make([]schema.Table, 0, snap.TableCount())
	for _, n := range snap.TableNames() {
		tables = append(tables, snap.Tables[n])
	}
	return schemaResponse{
		Connection:    name,
		Tables:        tables,
		Relationships: snap.Relationships,
		TableCount:    snap.TableCount(),
		Text:          schema.Format(snap),
		LastRefresh:   snap.FetchedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	s.serveSchema(w, r, s.schemas.Resolve)
}

func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	s.serveSchema(w, r, s.schemas.Refresh)
}

type schemaFetch func(ctx context.Context, key string, cfg engine.Config) (schema.Snapshot, error)

func (s *Server) serveSchema(w http.ResponseWriter, r *http.Request, fetch schemaFetch) {
	name := chi.URLParam(r, "connection")
	cfg, err := s.connections.Lookup(name)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), schemaTimeout)
	defer cancel()

	snap, err := fetch(ctx, name, cfg)
	if err != nil {
		s.logger.Warn("schema request failed", zap.String("connection", name), zap.Error(err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSchemaResponse(name, snap))
}

// statusFor maps a failure kind onto an HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindConfig:
		return http.StatusNotFound
	case apperrors.KindUnsafeStatement, apperrors.KindNotAnswerable, apperrors.KindEmptyGeneration,
		apperrors.KindUnsupportedEngine:
		return http.StatusUnprocessableEntity
	case apperrors.KindGenerationTimeout, apperrors.KindExecutionTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindConnectivity, apperrors.KindGenerationFailed, apperrors.KindEngineExecution,
		apperrors.KindSchemaUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	respondJSON(w, statusFor(kind), errorResponse{
		Success:   false,
		Message:   apperrors.UserMessage(err),
		ErrorKind: kind,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
