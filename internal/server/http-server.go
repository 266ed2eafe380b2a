package server

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/form"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/grid"
	"dovakin0007.com/editorial-grid/internal/utils"
)

const ActorHeader = "X-User-Id"

// maxNoteBody fits a note at its length limits even with every character
// escaped.
const maxNoteBody = 1 << 20

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type HTTPServer struct {
	Addr   string
	server *http.Server
	logger *logrus.Entry
}

type gridRoutes struct {
	handler *grid.Handler
	decoder *form.Decoder
	logger  *logrus.Entry
}

// NewRouter mounts the grid endpoints together with /metrics and /healthz.
func NewRouter(handler *grid.Handler, logger *logrus.Entry) *mux.Router {
	g := &gridRoutes{handler: handler, decoder: form.NewDecoder(), logger: logger}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	stage := r.PathPrefix("/submissions/{submissionId}/stages/{stageId}").Subrouter()
	stage.HandleFunc("/queries/{queryId}/notes", g.listNotes).Methods(http.MethodGet)
	stage.HandleFunc("/queries/{queryId}/notes", g.insertNote).Methods(http.MethodPost)
	stage.HandleFunc("/queries/{queryId}/notes/{noteId}", g.fetchNote).Methods(http.MethodGet)
	stage.HandleFunc("/queries/{queryId}/notes/{noteId}", g.deleteNote).Methods(http.MethodDelete)
	stage.HandleFunc("/users/options", g.stageUserOptions).Methods(http.MethodGet)
	stage.HandleFunc("/users/row", g.fetchStageUser).Methods(http.MethodGet)
	stage.HandleFunc("/users", g.listStageUsers).Methods(http.MethodGet)
	return r
}

func NewHTTPServer(port int, handler *grid.Handler, logger *logrus.Entry) *HTTPServer {
	logger = logger.WithField("component", "http")
	addr := fmt.Sprintf(":%d", port)
	return &HTTPServer{
		Addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handler, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (h *HTTPServer) Run(errs chan<- error) {
	h.logger.Infof("HTTP server running on %s", h.Addr)
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs <- errors.Wrap(err, "http serve")
		return
	}
	errs <- nil
}

func (h *HTTPServer) End(ctx context.Context) error {
	h.logger.Info("stopping HTTP server")
	return h.server.Shutdown(ctx)
}

func params(r *http.Request) access.Params {
	vars := mux.Vars(r)
	return access.Params{
		SubmissionID: vars["submissionId"],
		StageID:      vars["stageId"],
		QueryID:      vars["queryId"],
	}
}

func (g *gridRoutes) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := utils.ParseActorID(r.Header.Get(ActorHeader))
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return 0, false
	}
	return id, true
}

func (g *gridRoutes) listNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	page, err := g.handler.ListNotes(r.Context(), userID, params(r))
	g.respond(w, r, page, err)
}

func (g *gridRoutes) fetchNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	resp, err := g.handler.FetchNote(r.Context(), userID, params(r), mux.Vars(r)["noteId"])
	g.respond(w, r, resp, err)
}

func (g *gridRoutes) insertNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	var note grid.NoteForm
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBody)
	if err := g.decodeNote(r, &note); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request_too_large", "note body is too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	resp, err := g.handler.InsertNote(r.Context(), userID, params(r), note)
	g.respond(w, r, resp, err)
}

// decodeNote accepts JSON bodies and anything ParseForm understands.
func (g *gridRoutes) decodeNote(r *http.Request, note *grid.NoteForm) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(note); err != nil {
			return errors.Wrap(err, "decode json body")
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return errors.Wrap(err, "parse form")
	}
	if err := g.decoder.Decode(note, r.PostForm); err != nil {
		return errors.Wrap(err, "decode form")
	}
	return nil
}

func (g *gridRoutes) deleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	resp, err := g.handler.DeleteNote(r.Context(), userID, params(r), mux.Vars(r)["noteId"])
	g.respond(w, r, resp, err)
}

func (g *gridRoutes) stageUserOptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	page, err := g.handler.StageUserOptions(r.Context(), userID, params(r))
	g.respond(w, r, page, err)
}

func (g *gridRoutes) listStageUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	page, err := g.handler.ListStageUsers(r.Context(), userID, params(r), r.URL.Query()["userIds"])
	g.respond(w, r, page, err)
}

func (g *gridRoutes) fetchStageUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	resp, err := g.handler.FetchStageUser(r.Context(), userID, params(r), q.Get("rowId"), q.Get("newRowId"))
	g.respond(w, r, resp, err)
}

func (g *gridRoutes) respond(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	var authErr *access.AuthorizationError
	if errors.As(err, &authErr) {
		writeJSONError(w, http.StatusForbidden, "forbidden", "access denied", map[string]string{
			"operation": string(authErr.Operation),
			"reason":    string(authErr.Reason),
		})
		return
	}
	g.logger.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("grid request failed")
	writeJSONError(w, http.StatusInternalServerError, "internal", "grid request failed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string, meta ...map[string]string) {
	payload := &APIError{
		Code:    code,
		Message: message,
	}
	if len(meta) > 0 && meta[0] != nil {
		payload.Meta = meta[0]
	}
	writeJSON(w, status, payload)
}
