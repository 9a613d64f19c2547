package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emrgen/notesync/internal/access"
	"github.com/emrgen/notesync/internal/attachment"
	"github.com/emrgen/notesync/internal/reader"
	"github.com/emrgen/notesync/internal/report"
	"github.com/emrgen/notesync/internal/revision"
	"github.com/emrgen/notesync/internal/service"
	"github.com/emrgen/notesync/internal/store"
	"github.com/sirupsen/logrus"
)

const codeSigningDisabled = "SIGNING_DISABLED"

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	LimitMB int64    `json:"limitMB,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var policy *attachment.PolicyError
	if errors.As(err, &policy) {
		status := http.StatusInternalServerError
		switch policy.Code {
		case attachment.CodeSizeLimit:
			status = http.StatusRequestEntityTooLarge
		case attachment.CodeUnsupportedMimeType:
			status = http.StatusUnsupportedMediaType
		}
		writeJSON(w, status, errorBody{
			Error:   policy.Error(),
			Code:    policy.Code,
			LimitMB: policy.LimitMB,
			Allowed: policy.Allowed,
		})
		return
	}

	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}
	switch {
	case errors.Is(err, service.ErrNoteNotFound),
		errors.Is(err, attachment.ErrNoteNotFound),
		errors.Is(err, attachment.ErrAttachmentNotFound),
		errors.Is(err, reader.ErrNoteNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, access.ErrNotOwner), errors.Is(err, access.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrMissingCaller):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNoInvitation),
		errors.Is(err, reader.ErrInvalidCursor),
		errors.Is(err, revision.ErrInvalidCause):
		status = http.StatusBadRequest
	case errors.Is(err, attachment.ErrSigningDisabled):
		body.Code = codeSigningDisabled
	default:
		logrus.Errorf("request failed: %v", err)
		body.Error = "internal error"
	}

	writeJSON(w, status, body)
}

// warnings lists the failed best-effort steps of a report.
func warnings(rep *report.Report) []string {
	errs := rep.Errors()
	if len(errs) == 0 {
		return nil
	}

	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
