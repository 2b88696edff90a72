// Package gateway implements the REST adapter (§4.E): the thin,
// stateless HTTP surface that translates JSON requests into GTP turns
// against the session manager and shapes GTP replies back into JSON.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/fastgtp/internal/audit"
	"github.com/basket/fastgtp/internal/gtp"
	fastgtpotel "github.com/basket/fastgtp/internal/otel"
	"github.com/basket/fastgtp/internal/session"
	"github.com/basket/fastgtp/internal/shared"
	"github.com/basket/fastgtp/internal/transport"
)

// Server holds the REST adapter's dependencies: the session manager it
// drives turns through, and the ambient collaborators (logging, tracing,
// metrics, audit) that are exercised around every turn but never change
// its outcome.
type Server struct {
	manager *session.Manager
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *fastgtpotel.Metrics
	audit   *audit.Store

	mux http.Handler
}

// Deps bundles Server's constructor dependencies. Metrics, Tracer, and
// Audit may be nil (no-op tracer/metrics are cheap to construct via
// internal/otel.Init with Enabled: false; Audit is simply skipped when nil).
type Deps struct {
	Manager *session.Manager
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *fastgtpotel.Metrics
	Audit   *audit.Store
	CORS    func(http.Handler) http.Handler
}

// NewServer builds the explicit (method, path template) routing table
// described in §9 and wraps it with the optional CORS middleware. No
// reflection or decorator-based dispatch is involved.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: deps.Manager,
		logger:  logger,
		tracer:  deps.Tracer,
		metrics: deps.Metrics,
		audit:   deps.Audit,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /open_session", s.handleOpenSession)
	mux.HandleFunc("POST /{sid}/quit", s.handleQuit)
	mux.HandleFunc("GET /{sid}/name", s.handleName)
	mux.HandleFunc("GET /{sid}/version", s.handleVersion)
	mux.HandleFunc("GET /{sid}/protocol_version", s.handleProtocolVersion)
	mux.HandleFunc("GET /{sid}/commands", s.handleCommands)
	mux.HandleFunc("POST /{sid}/boardsize", s.handleBoardsize)
	mux.HandleFunc("POST /{sid}/komi", s.handleSetKomi)
	mux.HandleFunc("GET /{sid}/komi", s.handleGetKomi)
	mux.HandleFunc("POST /{sid}/play", s.handlePlay)
	mux.HandleFunc("POST /{sid}/clear_board", s.handleClearBoard)
	mux.HandleFunc("POST /{sid}/genmove", s.handleGenmove)
	mux.HandleFunc("GET /{sid}/sgf", s.handleGetSGF)
	mux.HandleFunc("POST /{sid}/sgf", s.handlePostSGF)
	mux.HandleFunc("POST /{sid}/command", s.handleRawCommand)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	var h http.Handler = mux
	if deps.CORS != nil {
		h = deps.CORS(h)
	}
	h = s.withTraceID(h)
	s.mux = h
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// withTraceID ensures every request carries a trace ID, generating one
// if the caller didn't supply X-Request-Id, and stamps it into the
// request context so handlers and logs can attach it.
func (s *Server) withTraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-Id")
		if traceID == "" {
			traceID = shared.NewTraceID()
		}
		ctx := shared.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Request-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// --- request/response envelopes -------------------------------------------------

type openSessionResponse struct {
	SessionID string `json:"session_id"`
}

type closedResponse struct {
	Closed bool `json:"closed"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type nameResponse struct {
	Name string `json:"name"`
}

type versionResponse struct {
	Version string `json:"version"`
}

type protocolVersionResponse struct {
	ProtocolVersion string `json:"protocol_version"`
}

type commandsResponse struct {
	Commands []string `json:"commands"`
}

type boardsizeRequest struct {
	X int  `json:"x"`
	Y *int `json:"y,omitempty"`
}

type komiRequest struct {
	Value float64 `json:"value"`
}

type komiResponse struct {
	Komi float64 `json:"komi"`
}

type playRequest struct {
	Color  string `json:"color"`
	Vertex string `json:"vertex"`
}

type genmoveRequest struct {
	Color string `json:"color"`
}

type genmoveResponse struct {
	Move string `json:"move"`
}

type sgfResponse struct {
	SGF string `json:"sgf"`
}

type sgfRequest struct {
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content,omitempty"`
	Move     *int   `json:"move,omitempty"`
}

type rawCommandRequest struct {
	Command string `json:"command"`
}

type healthzResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// --- handlers --------------------------------------------------------------

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := fastgtpotel.StartServerSpan(r.Context(), s.tracer, "open_session",
		fastgtpotel.AttrHTTPRoute.String("/open_session"))
	defer span.End()

	id, err := s.manager.OpenSession(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.audit != nil {
		s.audit.RecordSessionEvent(id, "opened", "")
	}
	if s.metrics != nil {
		s.metrics.SessionActive.Add(ctx, 1)
	}
	s.writeJSON(w, http.StatusCreated, openSessionResponse{SessionID: id})
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	closed, err := s.manager.CloseSession(sid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if closed {
		if s.audit != nil {
			s.audit.RecordSessionEvent(sid, "closed", "reason=client_quit")
		}
		if s.metrics != nil {
			s.metrics.SessionActive.Add(r.Context(), -1)
		}
	}
	s.writeJSON(w, http.StatusOK, closedResponse{Closed: closed})
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "name", nil)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, nameResponse{Name: payload})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "version", nil)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, versionResponse{Version: payload})
}

func (s *Server) handleProtocolVersion(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "protocol_version", nil)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, protocolVersionResponse{ProtocolVersion: payload})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "list_commands", nil)
	if err != nil {
		return
	}
	var commands []string
	for _, line := range strings.Split(payload, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			commands = append(commands, line)
		}
	}
	s.writeJSON(w, http.StatusOK, commandsResponse{Commands: commands})
}

func (s *Server) handleBoardsize(w http.ResponseWriter, r *http.Request) {
	var req boardsizeRequest
	if !s.decodeJSON(w, r, &req, "boardsize") {
		return
	}
	args := []string{strconv.Itoa(req.X)}
	if req.Y != nil {
		args = append(args, strconv.Itoa(*req.Y))
	}
	payload, err := s.turn(w, r, "boardsize", args)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, detailResponse{Detail: payload})
}

func (s *Server) handleSetKomi(w http.ResponseWriter, r *http.Request) {
	var req komiRequest
	if !s.decodeJSON(w, r, &req, "komi") {
		return
	}
	payload, err := s.turn(w, r, "komi", []string{strconv.FormatFloat(req.Value, 'g', -1, 64)})
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, detailResponse{Detail: payload})
}

func (s *Server) handleGetKomi(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "get_komi", nil)
	if err != nil {
		return
	}
	komi, parseErr := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if parseErr != nil {
		s.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("engine returned non-numeric komi: %q", payload))
		return
	}
	s.writeJSON(w, http.StatusOK, komiResponse{Komi: komi})
}

var vertexPattern = regexp.MustCompile(`^[A-Za-z][0-9]+$`)

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !s.decodeJSON(w, r, &req, "play") {
		return
	}
	color := strings.ToUpper(strings.TrimSpace(req.Color))
	if color != "B" && color != "W" {
		s.writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("color must be \"B\" or \"W\", got %q", req.Color))
		return
	}
	if !vertexPattern.MatchString(req.Vertex) {
		s.writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("vertex %q does not match [A-Za-z][0-9]+", req.Vertex))
		return
	}
	vertex := strings.ToUpper(req.Vertex)
	payload, err := s.turn(w, r, "play", []string{color, vertex})
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, detailResponse{Detail: payload})
}

func (s *Server) handleClearBoard(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "clear_board", nil)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, detailResponse{Detail: payload})
}

func (s *Server) handleGenmove(w http.ResponseWriter, r *http.Request) {
	var req genmoveRequest
	if !s.decodeJSON(w, r, &req, "genmove") {
		return
	}
	color := strings.ToUpper(strings.TrimSpace(req.Color))
	if color != "B" && color != "W" {
		s.writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("color must be \"B\" or \"W\", got %q", req.Color))
		return
	}
	payload, err := s.turn(w, r, "genmove", []string{color})
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, genmoveResponse{Move: payload})
}

func (s *Server) handleGetSGF(w http.ResponseWriter, r *http.Request) {
	payload, err := s.turn(w, r, "printsgf", nil)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, sgfResponse{SGF: payload})
}

// handlePostSGF loads an SGF record into the engine's game state via
// the GTP loadsgf command — the inverse of handleGetSGF's printsgf,
// not a second invocation of it.
func (s *Server) handlePostSGF(w http.ResponseWriter, r *http.Request) {
	var req sgfRequest
	if !s.decodeJSON(w, r, &req, "sgf") {
		return
	}
	var args []string
	switch {
	case req.Filename != "":
		args = []string{req.Filename}
	case req.Content != "":
		args = []string{req.Content}
	}
	if req.Move != nil {
		args = append(args, strconv.Itoa(*req.Move))
	}
	payload, err := s.turn(w, r, "loadsgf", args)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, detailResponse{Detail: payload})
}

func (s *Server) handleRawCommand(w http.ResponseWriter, r *http.Request) {
	var req rawCommandRequest
	if !s.decodeJSON(w, r, &req, "command") {
		return
	}
	cmd, err := gtp.ParseCommandLine(req.Command)
	if err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	payload, turnErr := s.turn(w, r, cmd.Name, cmd.Args)
	if turnErr != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, detailResponse{Detail: payload})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", Sessions: s.manager.Count()})
}

// --- shared turn plumbing ----------------------------------------------------

// turn resolves the session's transport, builds and sends a GTP
// command, parses the reply, and writes an HTTP error response (mapped
// per §7) if anything along the way fails. On success it returns the
// reply payload and a nil error; callers should return immediately when
// err is non-nil, since the response has already been written.
func (s *Server) turn(w http.ResponseWriter, r *http.Request, name string, args []string) (string, error) {
	sid := r.PathValue("sid")
	ctx, span := fastgtpotel.StartServerSpan(r.Context(), s.tracer, name,
		fastgtpotel.AttrSessionID.String(sid),
		fastgtpotel.AttrGTPCommand.String(name))
	defer span.End()

	start := time.Now()
	payload, err := s.sendTurn(ctx, sid, name, args)
	if s.metrics != nil {
		s.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.TurnCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if s.audit != nil {
		s.audit.RecordTurn(sid, name, err == nil)
	}
	if err != nil {
		s.writeError(w, r, err)
		return "", err
	}
	return payload, nil
}

func (s *Server) sendTurn(ctx context.Context, sid, name string, args []string) (string, error) {
	tr, err := s.manager.GetTransport(sid)
	if err != nil {
		return "", err
	}

	line, err := gtp.BuildCommand(name, args, nil)
	if err != nil {
		return "", err
	}

	raw, err := tr.SendCommand(ctx, line)
	if err != nil {
		return "", err
	}

	resp, err := gtp.ParseResponse(raw, nil)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", errEngine, resp.Err)
	}
	return resp.Payload, nil
}

// errEngine marks a `?` GTP reply: the engine understood the turn but
// reported failure. Distinct from transport/codec errors so §7's mapping
// (both land on 502) still reads each failure's own message.
var errEngine = errors.New("gateway: engine error")

// --- JSON + error helpers ----------------------------------------------------

// decodeJSON reads the request body, validates it against the named
// JSON Schema (schemas.go), then decodes it into v. Schema validation
// runs first so a type-confused or out-of-range body (e.g. boardsize.x
// as a string, or a negative komi) is rejected with a field-level
// message before it ever reaches struct decoding or the engine.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any, schemaName string) bool {
	if r.Body == nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, "missing request body")
		return false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("read request body: %v", err))
		return false
	}
	if err := validateAgainstSchema(schemaName, body); err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// maxRequestBodyBytes bounds how much of a request body decodeJSON will
// read; GTP command bodies are small, and the REST adapter has no
// business buffering an unbounded upload.
const maxRequestBodyBytes = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("gateway: failed to encode response", "error", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

// writeError maps a core error to an HTTP status per §7 and writes it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gtp.ErrInvalidArgument), errors.Is(err, transport.ErrInvalidArgument):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, gtp.ErrMalformedResponse),
		errors.Is(err, gtp.ErrIdentifierMismatch),
		errors.Is(err, transport.ErrEngineExited),
		errors.Is(err, transport.ErrTransportBroken),
		errors.Is(err, errEngine):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = 499 // client closed request, nonstandard but widely used
	}

	s.logger.Warn("gateway: request failed",
		"method", r.Method, "path", r.URL.Path, "status", status, "error", err,
		"trace_id", shared.TraceID(r.Context()))
	s.writeJSONError(w, status, err.Error())
}
