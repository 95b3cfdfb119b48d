// Package api is the HTTP route layer over the notes service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuitang/tagnotes/internal/errs"
	"github.com/kuitang/tagnotes/internal/logutil"
	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/kuitang/tagnotes/internal/obs"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 64 << 10

// Handler wraps the notes service and provides HTTP handlers
type Handler struct {
	notesService *notes.Service
}

// NewHandler creates a new API handler with the given notes service
func NewHandler(notesService *notes.Service) *Handler {
	return &Handler{notesService: notesService}
}

// RegisterRoutes registers all notes API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /notes", h.ListNotes)
	mux.HandleFunc("GET /notes/tags", h.ListTags)
	mux.HandleFunc("GET /notes/{id}", h.GetNote)
	mux.HandleFunc("GET /notes/{id}/html", h.GetNoteHTML)
	mux.HandleFunc("POST /notes", h.CreateNote)
	mux.HandleFunc("PUT /notes/{id}", h.UpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", h.DeleteNote)
}

// ListNotes handles GET /notes, optionally filtered by ?tag=.
// The tag is normalized the same way stored tags are.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var (
		result []notes.Note
		err    error
	)
	if tag := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("tag"))); tag != "" {
		result, err = h.notesService.ListByTag(r.Context(), tag)
	} else {
		result, err = h.notesService.ListAll(r.Context())
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListTags handles GET /notes/tags
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.notesService.ListTags(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// GetNote handles GET /notes/{id}
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	note, err := h.notesService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetNoteHTML handles GET /notes/{id}/html - the note rendered as a document
func (h *Handler) GetNoteHTML(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	page, err := h.notesService.RenderHTML(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; img-src https: data:")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// CreateNote handles POST /notes
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in notes.NoteInput
	if !decodeBody(w, r, &in) {
		return
	}
	note, err := h.notesService.Create(r.Context(), in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /notes/{id} - full replacement of title, content and tags
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var in notes.NoteInput
	if !decodeBody(w, r, &in) {
		return
	}
	note, err := h.notesService.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id}
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	if err := h.notesService.Delete(r.Context(), id); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// noteID parses the {id} path value. Anything but a positive integer
// cannot name a note, so it is reported as not found.
func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, &errs.Error{Code: errs.NotFound, Message: "note not found", Field: "id"})
		return 0, false
	}
	return id, true
}

// maxLoggedBody bounds the body preview in debug logs for rejected requests.
const maxLoggedBody = 512

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			errs.Invalid("body", "max_bytes", "request body must be at most "+strconv.Itoa(MaxBodyBytes)+" bytes"))
		return false
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, errs.Invalid("body", "json", "request body could not be read"))
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	err = dec.Decode(dst)
	if err == nil {
		if dec.Decode(&struct{}{}) != io.EOF {
			writeError(w, http.StatusBadRequest, errs.Invalid("body", "json", "request body must be a single JSON object"))
			return false
		}
		return true
	}

	obs.From(r.Context()).Debug("rejected request body",
		"headers", logutil.FormatHeadersForLog(r.Header),
		"body", logutil.FormatBodyForLog(r.Header.Get("Content-Type"), body, maxLoggedBody, false),
		"error", err,
	)

	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errs.CodeOf(err) == errs.InvalidInput:
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		writeError(w, http.StatusBadRequest,
			errs.Invalid(typeErr.Field, "type", typeErr.Field+" must be a "+typeErr.Type.String()+", got "+typeErr.Value))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		writeError(w, http.StatusBadRequest, errs.Invalid("body", "json", "request body is not valid JSON"))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, errs.Invalid("body", "required", "request body is required"))
	default:
		writeError(w, http.StatusBadRequest, errs.Invalid("body", "json", "request body must be a JSON object"))
	}
	return false
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// writeServiceError maps a service error onto its status. Failures the
// client cannot fix are logged with their cause; the response stays generic.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(ctx).Error("request failed", "code", string(code), "error", err)
	}
	writeError(w, status, err)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{
		Error: errs.MessageOf(err),
		Code:  string(errs.CodeOf(err)),
		Field: errs.FieldOf(err),
	})
}
