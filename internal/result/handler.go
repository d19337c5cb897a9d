package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"schooldesk/internal/app/apiresp"
	"schooldesk/internal/auth"
	"schooldesk/internal/grading"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc resultService
}

type resultService interface {
	Get(ctx context.Context, resultID int64) (*View, error)
	Recalculate(ctx context.Context, resultID int64) (*View, error)
	RecordCorrection(ctx context.Context, in CorrectionInput) (*grading.CorrectionEntry, error)
	Corrections(ctx context.Context, resultID int64) ([]grading.CorrectionEntry, error)
	ResultsByTest(ctx context.Context, testID int64) ([]StudentScore, error)
	ExportResultsExcel(ctx context.Context, testID int64) ([]byte, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createCorrectionRequest struct {
	QuestionID  string `json:"question_id"`
	NewOptionID string `json:"new_option_id"`
	Reason      string `json:"reason"`
}

type correctionCreatedResponse struct {
	Entry  *grading.CorrectionEntry `json:"entry"`
	Result *View                    `json:"result"`
}

func NewHandler(svc resultService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	resultID, ok := pathID(w, r, "id", "invalid result id")
	if !ok {
		return
	}
	view, err := h.svc.Get(r.Context(), resultID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: view})
}

func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	resultID, ok := pathID(w, r, "id", "invalid result id")
	if !ok {
		return
	}
	view, err := h.svc.Recalculate(r.Context(), resultID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: view})
}

func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	resultID, ok := pathID(w, r, "id", "invalid result id")
	if !ok {
		return
	}
	entries, err := h.svc.Corrections(r.Context(), resultID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: entries})
}

// CreateCorrection appends a ledger entry and immediately recalculates,
// so the reviewer always sees a score consistent with what they just
// recorded. The two steps are separate transactions; if recalculation
// fails the entry stands and any later read reconciles it anyway.
func (h *Handler) CreateCorrection(w http.ResponseWriter, r *http.Request) {
	resultID, ok := pathID(w, r, "id", "invalid result id")
	if !ok {
		return
	}
	var req createCorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.QuestionID == "" || req.NewOptionID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question_id and new_option_id are required"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	entry, err := h.svc.RecordCorrection(r.Context(), CorrectionInput{
		ResultID:    resultID,
		QuestionID:  req.QuestionID,
		NewOptionID: req.NewOptionID,
		Reason:      req.Reason,
		ReviewerID:  user.ID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	view, err := h.svc.Recalculate(r.Context(), resultID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: correctionCreatedResponse{
		Entry:  entry,
		Result: view,
	}})
}

func (h *Handler) ByTest(w http.ResponseWriter, r *http.Request) {
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}
	items, err := h.svc.ResultsByTest(r.Context(), testID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}
	data, err := h.svc.ExportResultsExcel(r.Context(), testID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=test_%d_results.xlsx", testID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrResultNotFound), errors.Is(err, ErrTestNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrQuestionNotInTest):
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrOptionNotInQuestion):
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrReasonRequired):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: msg})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
