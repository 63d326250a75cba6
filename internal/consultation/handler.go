package consultation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handler struct {
	svc      Service
	validate *validator.Validate
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

type StartConsultationRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
}

// Answer values are checked by the service so that a bad value is reported as INVALID_ANSWER.
type SaveAnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

type CompleteConsultationRequest struct {
	FinalDiagnosis string `json:"final_diagnosis" validate:"max=500"`
	Notes          string `json:"notes" validate:"max=2000"`
}

type errorResponse struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) StartConsultation(w http.ResponseWriter, r *http.Request) {
	var req StartConsultationRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.Start(r.Context(), uuid.MustParse(req.PatientID), uuid.MustParse(req.DoctorID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SaveAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.SaveAnswer(r.Context(), id, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	next, progress, err := h.svc.Describe(c)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"consultation":  c,
		"next_question": next,
		"progress":      progress,
	}
	if next.IsTerminal {
		resp["diagnosis_candidate"] = c.DiagnosisState.FinalDiagnosisCandidate
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := h.svc.CurrentQuestion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CompleteConsultationRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	c, err := h.svc.Complete(r.Context(), id, req.FinalDiagnosis, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SaveAsDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.SaveAsDraft(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Result(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListPatientConsultations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListByPatient(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) ListDoctorConsultations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListByDoctor(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) ListDiagnoses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Diagnoses())
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/consultations", func(r chi.Router) {
		r.Post("/", h.StartConsultation)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetConsultation)
			r.Post("/answers", h.SaveAnswer)
			r.Get("/question", h.CurrentQuestion)
			r.Get("/progress", h.Progress)
			r.Post("/complete", h.Complete)
			r.Post("/cancel", h.Cancel)
			r.Post("/draft", h.SaveAsDraft)
			r.Get("/result", h.Result)
		})
	})
	r.Get("/patients/{id}/consultations", h.ListPatientConsultations)
	r.Get("/doctors/{id}/consultations", h.ListDoctorConsultations)
	r.Get("/diagnoses", h.ListDiagnoses)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional accepts an empty body, including a chunked one, as the zero request.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if allowEmpty && errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "BAD_REQUEST", Message: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "BAD_REQUEST", Message: err.Error()})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "BAD_REQUEST", Message: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidAnswer:
		return http.StatusBadRequest
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindMissingDiagnosis, KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Message: err.Error()})
		return
	}
	writeJSON(w, statusFor(e.Kind), errorResponse{Error: e.Kind, Message: e.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil(list []*Consultation) []*Consultation {
	if list == nil {
		return []*Consultation{}
	}
	return list
}
