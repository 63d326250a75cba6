package consultation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ophtha-dss/internal/decisiontree"
)

// Status is the lifecycle state of a consultation.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Live reports whether the session can still receive answers.
func (s Status) Live() bool {
	return s == StatusDraft || s == StatusActive
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusActive, StatusCompleted, StatusCanceled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown consultation status %q", s)
}

// AnsweredQuestion is one step of the interview, in the order it was asked.
type AnsweredQuestion struct {
	Question  string              `json:"question"`
	Answer    decisiontree.Answer `json:"answer"`
	Timestamp time.Time           `json:"timestamp"`
}

// DiagnosisState is where the interview is right now. It is persisted as a
// single JSON document; see state_json.go for the stored shape.
type DiagnosisState struct {
	CurrentPath             decisiontree.Path
	CurrentQuestion         string
	Answers                 []AnsweredQuestion
	FinalDiagnosisCandidate string
	StartedAt               time.Time
	CompletedAt             *time.Time

	// Top-level keys of the stored document this version does not model.
	// They are written back unchanged.
	extra map[string]json.RawMessage
}

// Consultation is one patient/doctor diagnostic interview and the unit of persistence.
type Consultation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id" db:"doctor_id"`

	Status         Status         `json:"status" db:"status"`
	DiagnosisState DiagnosisState `json:"diagnosis_state" db:"diagnosis_state"`

	// Set only by Complete. May differ from DiagnosisState.FinalDiagnosisCandidate.
	FinalDiagnosis string `json:"final_diagnosis,omitempty" db:"final_diagnosis"`
	Notes          string `json:"notes,omitempty" db:"notes"`

	// Incremented by every successful update; used for optimistic concurrency.
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy.
func (c *Consultation) Clone() *Consultation {
	out := *c
	out.DiagnosisState = c.DiagnosisState.clone()
	return &out
}

func (s DiagnosisState) clone() DiagnosisState {
	out := s
	if s.CurrentPath != nil {
		out.CurrentPath = append(decisiontree.Path{}, s.CurrentPath...)
	}
	if s.Answers != nil {
		out.Answers = append([]AnsweredQuestion{}, s.Answers...)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			out.extra[k] = v
		}
	}
	return out
}

// Patch lists the fields an update may change. Nil fields are left as stored.
type Patch struct {
	DiagnosisState *DiagnosisState
	Status         *Status
	FinalDiagnosis *string
	Notes          *string

	// ExpectedVersion must equal the stored version or the update fails with KindConflict.
	ExpectedVersion int
}

func (p Patch) apply(c *Consultation) {
	if p.DiagnosisState != nil {
		c.DiagnosisState = p.DiagnosisState.clone()
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.FinalDiagnosis != nil {
		c.FinalDiagnosis = *p.FinalDiagnosis
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
}

// Progress summarises how far an interview has gone.
type Progress struct {
	CurrentQuestion   string  `json:"current_question"`
	QuestionsAnswered int     `json:"questions_answered"`
	IsCompleted       bool    `json:"is_completed"`
	AtDiagnosis       bool    `json:"at_diagnosis"`
	PercentComplete   float64 `json:"progress_percent"`
}

// SymptomEvidence is an answered question read as a present or absent symptom.
type SymptomEvidence struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}
