package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/notesync/internal/attachment"
	"github.com/emrgen/notesync/internal/audit"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/reader"
	"github.com/emrgen/notesync/internal/service"
	"github.com/emrgen/notesync/internal/token"
	"github.com/go-playground/validator/v10"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
)

// multipart bodies may carry a little more than the file itself
const uploadOverhead = 1 << 20

type noteJSON struct {
	ID          string                         `json:"id"`
	OwnerID     string                         `json:"ownerId"`
	Title       string                         `json:"title"`
	Content     string                         `json:"content"`
	Format      string                         `json:"format"`
	Tags        []string                       `json:"tags"`
	Attachments []model.EmbeddedAttachmentMeta `json:"attachments"`
	IsPublic    bool                           `json:"isPublic"`
	Status      string                         `json:"status"`
	CreatedAt   time.Time                      `json:"createdAt"`
	UpdatedAt   time.Time                      `json:"updatedAt"`
	Warnings    []string                       `json:"warnings,omitempty"`
}

func toJSON(note *model.Note, tags []string) *noteJSON {
	if tags == nil {
		tags = note.TagNames
	}
	if tags == nil {
		tags = []string{}
	}
	attachments := note.Attachments
	if attachments == nil {
		attachments = []model.EmbeddedAttachmentMeta{}
	}

	return &noteJSON{
		ID:          note.ID,
		OwnerID:     note.OwnerID,
		Title:       note.Title,
		Content:     note.Content,
		Format:      note.Format,
		Tags:        tags,
		Attachments: attachments,
		IsPublic:    note.IsPublic,
		Status:      note.Status,
		CreatedAt:   note.CreatedAt,
		UpdatedAt:   note.UpdatedAt,
	}
}

type tagsRequest struct {
	Tags []string `json:"tags" validate:"max=64,dive,max=64"`
}

type signedURLRequest struct {
	TTLSeconds int `json:"ttlSeconds" validate:"gte=0,lte=86400"`
}

type collaboratorRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

type Handler struct {
	notes       *service.NoteService
	reader      *reader.Reader
	attachments *attachment.Manager
	toolkit     *audit.Toolkit
	signer      *token.Signer
	validate    *validator.Validate
	maxUpload   int64
}

// NewHandler creates the HTTP handler. maxUpload caps request bodies of uploads,
// plan limits are enforced by the attachment manager.
func NewHandler(notes *service.NoteService, reader *reader.Reader, attachments *attachment.Manager, toolkit *audit.Toolkit, signer *token.Signer, maxUpload int64) *Handler {
	return &Handler{
		notes:       notes,
		reader:      reader,
		attachments: attachments,
		toolkit:     toolkit,
		signer:      signer,
		validate:    validator.New(),
		maxUpload:   maxUpload,
	}
}

type route struct {
	method  string
	path    string
	handler runtime.HandlerFunc
}

// Routes registers the API on a gateway mux wrapped in the caller and request-time middleware.
func (h *Handler) Routes() (http.Handler, error) {
	mux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.HTTPBodyMarshaler{
			Marshaler: &runtime.JSONPb{
				MarshalOptions: protojson.MarshalOptions{
					EmitUnpopulated: true,
				},
				UnmarshalOptions: protojson.UnmarshalOptions{
					DiscardUnknown: true,
				},
			},
		}),
		runtime.WithRoutingErrorHandler(routingError),
	)

	routes := []route{
		{"POST", "/v1/notes", requireCaller(h.createNote)},
		{"GET", "/v1/notes", requireCaller(h.listNotes)},
		{"GET", "/v1/notes/{id}", requireCaller(h.getNote)},
		{"PATCH", "/v1/notes/{id}", requireCaller(h.updateNote)},
		{"DELETE", "/v1/notes/{id}", requireCaller(h.deleteNote)},
		{"PUT", "/v1/notes/{id}/tags", requireCaller(h.setTags)},
		{"GET", "/v1/notes/{id}/revisions", requireCaller(h.listRevisions)},
		{"POST", "/v1/notes/{id}/collaborators", requireCaller(h.addCollaborator)},
		{"POST", "/v1/notes/{id}/collaborators/accept", requireCaller(h.acceptCollaborator)},

		{"GET", "/v1/notes/{id}/attachments", requireCaller(h.listAttachments)},
		{"POST", "/v1/notes/{id}/attachments", requireCaller(h.addAttachment)},
		{"DELETE", "/v1/notes/{id}/attachments/{attachmentId}", requireCaller(h.removeAttachment)},
		{"GET", "/v1/notes/{id}/attachments/{attachmentId}", requireCaller(h.openAttachment)},
		{"POST", "/v1/notes/{id}/attachments/{attachmentId}/url", requireCaller(h.signedURL)},

		{"GET", "/v1/tags/audit", requireCaller(h.auditTags)},
		{"POST", "/v1/tags/repair", requireCaller(h.repairTags)},

		{"GET", token.DownloadPath, h.download},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, rt.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.path, err)
		}
	}

	return RequestTime(Caller(mux)), nil
}

// routingError answers unknown paths and methods in the API error shape.
func routingError(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, status int) {
	writeJSON(w, status, errorBody{Error: strings.ToLower(http.StatusText(status))})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in service.CreateNoteInput
	if !h.decode(w, r, &in) {
		return
	}

	note, rep, err := h.notes.CreateNote(r.Context(), callerID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}

	body := toJSON(note, nil)
	body.Warnings = warnings(rep)
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}

	page, err := h.reader.ListNotesPage(r.Context(), reader.Query{
		OwnerID: callerID(r.Context()),
		Status:  q.Get("status"),
	}, q.Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	notes := make([]*noteJSON, len(page.Notes))
	for i, v := range page.Notes {
		notes[i] = toJSON(v.Note, v.Tags)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notes":      notes,
		"nextCursor": page.NextCursor,
		"hasMore":    page.HasMore,
	})
}

func (h *Handler) getNote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	view, err := h.reader.GetNote(r.Context(), params["id"], callerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJSON(view.Note, view.Tags))
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in service.UpdateNoteInput
	if !h.decode(w, r, &in) {
		return
	}

	note, rep, err := h.notes.UpdateNote(r.Context(), params["id"], callerID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}

	body := toJSON(note, nil)
	body.Warnings = warnings(rep)
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rep, err := h.notes.DeleteNote(r.Context(), params["id"], callerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "warnings": warnings(rep)})
}

func (h *Handler) setTags(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in tagsRequest
	if !h.decode(w, r, &in) {
		return
	}

	res, rep, err := h.notes.SetNoteTags(r.Context(), params["id"], callerID(r.Context()), in.Tags)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tags":     res.TagNames,
		"added":    res.Added,
		"removed":  res.Removed,
		"warnings": warnings(rep),
	})
}

func (h *Handler) listRevisions(w http.ResponseWriter, r *http.Request, params map[string]string) {
	revs, err := h.notes.ListRevisions(r.Context(), params["id"], callerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

func (h *Handler) addCollaborator(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in collaboratorRequest
	if !h.decode(w, r, &in) {
		return
	}

	if err := h.notes.AddCollaborator(r.Context(), params["id"], callerID(r.Context()), in.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"userId": in.UserID, "status": model.CollaboratorPending})
}

func (h *Handler) acceptCollaborator(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.notes.AcceptCollaborator(r.Context(), params["id"], callerID(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": model.CollaboratorAccepted})
}

func (h *Handler) listAttachments(w http.ResponseWriter, r *http.Request, params map[string]string) {
	list, err := h.attachments.ListAttachments(r.Context(), params["id"], callerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"attachments": list})
}

func (h *Handler) addAttachment(w http.ResponseWriter, r *http.Request, params map[string]string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+uploadOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error(), Code: attachment.CodeSizeLimit})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing multipart file: " + err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	meta, rep, err := h.attachments.AddAttachment(r.Context(), params["id"], callerID(r.Context()), attachment.File{
		Name: header.Filename,
		Mime: header.Header.Get("Content-Type"),
		Data: data,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"attachment": meta, "warnings": warnings(rep)})
}

func (h *Handler) removeAttachment(w http.ResponseWriter, r *http.Request, params map[string]string) {
	removed, rep, err := h.attachments.RemoveAttachment(r.Context(), params["id"], callerID(r.Context()), params["attachmentId"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "warnings": warnings(rep)})
}

func (h *Handler) openAttachment(w http.ResponseWriter, r *http.Request, params map[string]string) {
	obj, err := h.attachments.OpenAttachment(r.Context(), params["id"], callerID(r.Context()), params["attachmentId"])
	if err != nil {
		writeError(w, err)
		return
	}

	serveBlob(w, obj.Name, obj.Mime, obj.Data)
}

func (h *Handler) signedURL(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in signedURLRequest
	if !h.decode(w, r, &in) {
		return
	}

	signed, err := h.attachments.SignedURL(r.Context(), params["id"], callerID(r.Context()), params["attachmentId"], time.Duration(in.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, signed)
}

func (h *Handler) auditTags(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	res, err := h.toolkit.AuditTagPivots(r.Context(), callerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) repairTags(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	res, rep, err := h.toolkit.Repair(r.Context(), callerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": res, "warnings": warnings(rep)})
}

// download serves a blob to the holder of a signed url. Token failures are
// always 401 with the reason.
func (h *Handler) download(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	grant, reason := h.signer.VerifyQuery(r.URL.Query())
	if reason != token.ReasonNone {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid download token", Reason: string(reason)})
		return
	}

	obj, err := h.attachments.Download(r.Context(), grant)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", max(grant.Exp-time.Now().Unix(), 0)))
	serveBlob(w, obj.Name, obj.Mime, obj.Data)
}

func serveBlob(w http.ResponseWriter, name, mimeType string, data []byte) {
	if mimeType == "" {
		mimeType = attachment.OctetStream
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		logrus.Warnf("write attachment %s: %v", name, err)
	}
}
