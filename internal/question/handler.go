package question

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"schooldesk/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	CreateTest(ctx context.Context, title string) (*TestRecord, error)
	ListTests(ctx context.Context) ([]TestRecord, error)
	ListQuestions(ctx context.Context, testID int64) ([]QuestionRecord, error)
	UpsertQuestion(ctx context.Context, in UpsertQuestionInput) (*QuestionRecord, error)
	DeleteQuestion(ctx context.Context, testID int64, questionID string) error
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createTestRequest struct {
	Title string `json:"title"`
}

type upsertQuestionRequest struct {
	ID       string         `json:"id"`
	SeqNo    int            `json:"seq_no"`
	Content  string         `json:"content"`
	Weight   float64        `json:"weight"`
	ImageURL string         `json:"image_url"`
	Options  []OptionRecord `json:"options"`
}

func NewHandler(svc questionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	t, err := h.svc.CreateTest(r.Context(), req.Title)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "title is required"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: t})
}

func (h *Handler) ListTests(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListTests(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListQuestions(r.Context(), testID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) UpsertQuestion(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}
	var req upsertQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	rec, err := h.svc.UpsertQuestion(r.Context(), UpsertQuestionInput{
		TestID:   testID,
		ID:       strings.TrimSpace(req.ID),
		SeqNo:    req.SeqNo,
		Content:  req.Content,
		Weight:   req.Weight,
		ImageURL: req.ImageURL,
		Options:  req.Options,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: rec})
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}
	questionID := strings.TrimSpace(chi.URLParam(r, "questionID"))
	if questionID == "" {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid question id"})
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), testID, questionID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) testID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid test id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDuplicateOption):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
