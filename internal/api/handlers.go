package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/noteservice"
	"github.com/starford/tasknotes/internal/parser"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /api/tasks.
//
//	@Summary		List task notes with pagination
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, "list notes", "", err)
		return
	}
	if items == nil {
		items = []NoteListItem{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// Search handles GET /api/tasks/search.
//
//	@Summary		Search note text and checklist items
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", "", err)
		return
	}
	if results == nil {
		results = []NoteListItem{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// CreateNote handles POST /api/tasks/{taskID}/notes.
//
//	@Summary		Initialise a task's notes with an empty checklist
//	@Tags			notes
//	@Produce		json
//	@Param			taskID	path		string	true	"Task ID"
//	@Success		201		{object}	NoteDetail
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	d, err := h.svc.Create(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, "create note", taskID, err)
		return
	}
	writeNote(w, http.StatusCreated, d, d)
}

// GetNote handles GET /api/tasks/{taskID}/notes.
//
//	@Summary		Get a task's notes
//	@Tags			notes
//	@Produce		json
//	@Param			taskID	path		string	true	"Task ID"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	d, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, "get note", taskID, err)
		return
	}
	writeNote(w, http.StatusOK, d, d)
}

// PutNote handles PUT /api/tasks/{taskID}/notes.
//
// The body is a note in its persisted encoding, e.g.
// {"format":"list","items":[...]}. Bodies that do not match it are rejected.
//
//	@Summary		Replace a task's notes with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			taskID		path	string	true	"Task ID"
//	@Param			If-Match	header	string	false	"Checksum for optimistic concurrency"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes [put]
func (h *Handler) PutNote(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if !parser.IsStructured(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("body is not a valid note"))
		return
	}
	d, err := h.svc.Save(r.Context(), taskID, parser.Parse(body), r.Header.Get("If-Match"))
	if err != nil {
		writeServiceError(w, "save note", taskID, err)
		return
	}
	writeNote(w, http.StatusOK, d, d)
}

// DeleteNote handles DELETE /api/tasks/{taskID}/notes.
//
//	@Summary		Delete a task's notes
//	@Tags			notes
//	@Param			taskID	path	string	true	"Task ID"
//	@Success		204		"Notes deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.svc.Delete(r.Context(), taskID); err != nil {
		writeServiceError(w, "delete note", taskID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRaw handles GET /api/tasks/{taskID}/notes/raw and returns the persisted
// string form of the note.
//
//	@Summary		Get a task's notes in persisted form
//	@Tags			notes
//	@Produce		plain
//	@Param			taskID	path		string	true	"Task ID"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/raw [get]
func (h *Handler) GetRaw(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	d, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, "get raw note", taskID, err)
		return
	}
	w.Header().Set("ETag", `"`+d.Checksum+`"`)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, parser.Stringify(d.Note))
}

// PutRaw handles PUT /api/tasks/{taskID}/notes/raw. Any body is accepted:
// structured notes are decoded, anything else is stored as plain text.
//
//	@Summary		Replace a task's notes from a raw string
//	@Tags			notes
//	@Accept			plain
//	@Produce		json
//	@Param			taskID		path	string	true	"Task ID"
//	@Param			If-Match	header	string	false	"Checksum for optimistic concurrency"
//	@Success		200		{object}	NoteDetail
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/raw [put]
func (h *Handler) PutRaw(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	d, err := h.svc.SaveRaw(r.Context(), taskID, body, r.Header.Get("If-Match"))
	if err != nil {
		writeServiceError(w, "save raw note", taskID, err)
		return
	}
	writeNote(w, http.StatusOK, d, d)
}

// Convert handles POST /api/tasks/{taskID}/notes/convert.
//
//	@Summary		Switch a task's notes to another format
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			taskID	path		string			true	"Task ID"
//	@Param			body	body		ConvertRequest	true	"Target format"
//	@Success		200		{object}	ConvertResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	var req ConvertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, lossy, err := h.svc.Convert(r.Context(), taskID, req.Format)
	if err != nil {
		writeServiceError(w, "convert note", taskID, err)
		return
	}
	writeNote(w, http.StatusOK, d, ConvertResponse{Note: *d, Lossy: lossy})
}

// AddItem handles POST /api/tasks/{taskID}/notes/items.
//
//	@Summary		Append a checklist item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			taskID	path		string			true	"Task ID"
//	@Param			body	body		AddItemRequest	true	"Item text"
//	@Success		201		{object}	AddItemResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/items [post]
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, item, err := h.svc.AddItem(r.Context(), taskID, req.Text)
	if err != nil {
		writeServiceError(w, "add item", taskID, err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("text: cannot be blank"))
		return
	}
	writeNote(w, http.StatusCreated, d, AddItemResponse{Note: *d, Item: *item})
}

// PatchItem handles PATCH /api/tasks/{taskID}/notes/items/{itemID}.
//
//	@Summary		Update a checklist item's text or completion
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			taskID	path		string				true	"Task ID"
//	@Param			itemID	path		string				true	"Item ID"
//	@Param			body	body		PatchItemRequest	true	"Fields to change"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/items/{itemID} [patch]
func (h *Handler) PatchItem(w http.ResponseWriter, r *http.Request) {
	taskID, itemID := chi.URLParam(r, "taskID"), chi.URLParam(r, "itemID")
	var req PatchItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, ok := h.requireItem(w, r, taskID, itemID)
	if !ok {
		return
	}
	var err error
	if req.Text != nil {
		if d, err = h.svc.UpdateItemText(r.Context(), taskID, itemID, *req.Text); err != nil {
			writeServiceError(w, "update item", taskID, err)
			return
		}
	}
	if req.Completed != nil {
		if d, err = h.svc.SetItemCompleted(r.Context(), taskID, itemID, *req.Completed); err != nil {
			writeServiceError(w, "update item", taskID, err)
			return
		}
	}
	writeNote(w, http.StatusOK, d, d)
}

// DeleteItem handles DELETE /api/tasks/{taskID}/notes/items/{itemID}.
//
//	@Summary		Remove a checklist item
//	@Tags			items
//	@Produce		json
//	@Param			taskID	path		string	true	"Task ID"
//	@Param			itemID	path		string	true	"Item ID"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/items/{itemID} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	taskID, itemID := chi.URLParam(r, "taskID"), chi.URLParam(r, "itemID")
	if _, ok := h.requireItem(w, r, taskID, itemID); !ok {
		return
	}
	d, err := h.svc.RemoveItem(r.Context(), taskID, itemID)
	if err != nil {
		writeServiceError(w, "remove item", taskID, err)
		return
	}
	writeNote(w, http.StatusOK, d, d)
}

// MoveItem handles POST /api/tasks/{taskID}/notes/items/{itemID}/move.
// Out-of-range indexes are clamped.
//
//	@Summary		Move a checklist item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			taskID	path		string			true	"Task ID"
//	@Param			itemID	path		string			true	"Item ID"
//	@Param			body	body		MoveItemRequest	true	"Target index"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{taskID}/notes/items/{itemID}/move [post]
func (h *Handler) MoveItem(w http.ResponseWriter, r *http.Request) {
	taskID, itemID := chi.URLParam(r, "taskID"), chi.URLParam(r, "itemID")
	var req MoveItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := h.requireItem(w, r, taskID, itemID); !ok {
		return
	}
	d, err := h.svc.MoveItem(r.Context(), taskID, itemID, *req.Index)
	if err != nil {
		writeServiceError(w, "move item", taskID, err)
		return
	}
	writeNote(w, http.StatusOK, d, d)
}

// requireItem loads the task's notes and writes 422 for text notes or 404
// when itemID is not on the checklist.
func (h *Handler) requireItem(w http.ResponseWriter, r *http.Request, taskID, itemID string) (*NoteDetail, bool) {
	d, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, "get note", taskID, err)
		return nil, false
	}
	if d.Note.Format() == models.FormatText {
		writeServiceError(w, "get note", taskID, apperr.ErrUnsupportedFormat)
		return nil, false
	}
	for _, it := range models.ItemsOf(d.Note) {
		if it.ID == itemID {
			return d, true
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody("item not found"))
	return nil, false
}

func readBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return "", false
	}
	return string(body), true
}
