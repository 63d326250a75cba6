package consultation

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ophtha-dss/internal/decisiontree"
	"ophtha-dss/internal/recommendation"
)

// Service drives a consultation through the decision tree and its lifecycle.
//
// Each mutation is a read-modify-write of one record, run under the record's
// Locker key and committed with an optimistic version check. A version
// conflict re-reads the record and recomputes the change, up to
// maxWriteAttempts times. All other repository failures are returned as is.
type Service interface {
	Start(ctx context.Context, patientID, doctorID uuid.UUID) (*Consultation, error)
	SaveAnswer(ctx context.Context, id uuid.UUID, answer string) (*Consultation, error)
	CurrentQuestion(ctx context.Context, id uuid.UUID) (decisiontree.QuestionView, error)
	Progress(ctx context.Context, id uuid.UUID) (*Progress, error)
	// Describe computes the question view and progress of c as given, without reading the store.
	Describe(c *Consultation) (decisiontree.QuestionView, *Progress, error)
	Complete(ctx context.Context, id uuid.UUID, finalDiagnosis, notes string) (*Consultation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Consultation, error)
	SaveAsDraft(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Result(ctx context.Context, id uuid.UUID) (*Result, error)

	Get(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Consultation, error)
	Diagnoses() []decisiontree.DiagnosisPath
}

type Option func(*service)

func WithLocker(l Locker) Option {
	return func(s *service) { s.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *service) { s.logger = l }
}

// WithMaxWriteAttempts bounds read-modify-write retries after a version conflict.
func WithMaxWriteAttempts(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxWriteAttempts = n
		}
	}
}

type service struct {
	repo             Repository
	tree             *decisiontree.Tree
	recs             recommendation.Lookup
	locker           Locker
	now              func() time.Time
	logger           zerolog.Logger
	maxWriteAttempts int
}

func NewService(repo Repository, tree *decisiontree.Tree, recs recommendation.Lookup, opts ...Option) Service {
	s := &service{
		repo:             repo,
		tree:             tree,
		recs:             recs,
		locker:           NewLocalLocker(),
		now:              time.Now,
		logger:           log.Logger,
		maxWriteAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "consultation").Logger()
	return s
}

func (s *service) Start(ctx context.Context, patientID, doctorID uuid.UUID) (*Consultation, error) {
	const op = "start"

	unlock, err := s.lock(ctx, op, uuid.Nil, "pair:"+patientID.String()+":"+doctorID.String())
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer unlock()

	existing, err := s.repo.FindActiveOrDraft(ctx, patientID, doctorID)
	if err == nil {
		sessionsStarted.WithLabelValues("resumed").Inc()
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, s.fail(op, err)
	}

	root, _ := s.tree.QuestionAt(decisiontree.Path{})
	now := s.now().UTC()
	c := &Consultation{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    StatusActive,
		DiagnosisState: DiagnosisState{
			CurrentPath:     decisiontree.Path{},
			CurrentQuestion: root.Text,
			StartedAt:       now,
		},
		CreatedAt: now,
	}

	created, err := s.repo.Create(ctx, c)
	if errors.Is(err, ErrConflict) {
		// Another process created the live session between our lookup and insert.
		if existing, findErr := s.repo.FindActiveOrDraft(ctx, patientID, doctorID); findErr == nil {
			sessionsStarted.WithLabelValues("resumed").Inc()
			return existing, nil
		}
	}
	if err != nil {
		return nil, s.fail(op, err)
	}

	sessionsStarted.WithLabelValues("created").Inc()
	s.logger.Info().
		Str("consultation_id", created.ID.String()).
		Str("patient_id", patientID.String()).
		Str("doctor_id", doctorID.String()).
		Msg("consultation started")
	return created, nil
}

func (s *service) SaveAnswer(ctx context.Context, id uuid.UUID, answer string) (*Consultation, error) {
	const op = "save_answer"

	a, err := decisiontree.ParseAnswer(answer)
	if err != nil {
		return nil, s.fail(op, &Error{Kind: KindInvalidAnswer, Op: op, ConsultationID: id, Answer: answer, Err: err})
	}

	var reachedDiagnosis bool
	updated, err := s.mutate(ctx, op, id, func(c *Consultation) (*Patch, error) {
		reachedDiagnosis = false
		if !c.Status.Live() {
			return nil, &Error{Kind: KindInvalidState, Op: op, ConsultationID: id, Status: c.Status,
				Message: "answers are accepted only while the consultation is draft or active"}
		}

		state := c.DiagnosisState.clone()
		current, ok := s.tree.QuestionAt(state.CurrentPath)
		if !ok {
			return nil, &Error{Kind: KindInconsistentState, Op: op, ConsultationID: id, Path: state.CurrentPath,
				Message: "stored path does not resolve in the decision tree"}
		}

		now := s.now().UTC()
		state.Answers = append(state.Answers, AnsweredQuestion{
			Question:  current.Text,
			Answer:    a,
			Timestamp: now,
		})

		next, ok := s.tree.Advance(state.CurrentPath, a)
		if !ok {
			return nil, &Error{Kind: KindInvalidTransition, Op: op, ConsultationID: id, Path: state.CurrentPath,
				Answer: string(a), Message: "decision tree has no such branch"}
		}
		state.CurrentPath = next.Path
		state.CurrentQuestion = next.Question.Text

		if next.Question.IsTerminal {
			reachedDiagnosis = true
			state.FinalDiagnosisCandidate, _ = s.tree.DiagnosisAt(next.Path)
			state.CompletedAt = &now
		}
		return &Patch{DiagnosisState: &state}, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	answersRecorded.WithLabelValues(string(a)).Inc()
	if reachedDiagnosis {
		diagnosesReached.Inc()
		s.logger.Info().
			Str("consultation_id", id.String()).
			Str("candidate", updated.DiagnosisState.FinalDiagnosisCandidate).
			Int("answers", len(updated.DiagnosisState.Answers)).
			Msg("diagnosis candidate reached")
	}
	return updated, nil
}

func (s *service) CurrentQuestion(ctx context.Context, id uuid.UUID) (decisiontree.QuestionView, error) {
	const op = "current_question"

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return decisiontree.QuestionView{}, s.fail(op, err)
	}
	view, err := s.questionFor(op, c)
	if err != nil {
		return decisiontree.QuestionView{}, s.fail(op, err)
	}
	return view, nil
}

func (s *service) Progress(ctx context.Context, id uuid.UUID) (*Progress, error) {
	const op = "progress"

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	view, err := s.questionFor(op, c)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return s.progressFor(c, view), nil
}

func (s *service) Describe(c *Consultation) (decisiontree.QuestionView, *Progress, error) {
	const op = "describe"

	view, err := s.questionFor(op, c)
	if err != nil {
		return decisiontree.QuestionView{}, nil, s.fail(op, err)
	}
	return view, s.progressFor(c, view), nil
}

func (s *service) progressFor(c *Consultation, view decisiontree.QuestionView) *Progress {
	answered := len(c.DiagnosisState.Answers)
	p := &Progress{
		CurrentQuestion:   view.Text,
		QuestionsAnswered: answered,
		IsCompleted:       c.Status == StatusCompleted,
		AtDiagnosis:       view.IsTerminal,
	}
	if view.IsTerminal {
		p.PercentComplete = 100
	} else if remaining, _ := s.tree.RemainingDepth(c.DiagnosisState.CurrentPath); answered+remaining > 0 {
		p.PercentComplete = math.Round(float64(answered)/float64(answered+remaining)*1000) / 10
	}
	return p
}

func (s *service) Complete(ctx context.Context, id uuid.UUID, finalDiagnosis, notes string) (*Consultation, error) {
	const op = "complete"

	updated, err := s.mutate(ctx, op, id, func(c *Consultation) (*Patch, error) {
		if c.Status == StatusCanceled {
			return nil, &Error{Kind: KindInvalidState, Op: op, ConsultationID: id, Status: c.Status,
				Message: "a canceled consultation cannot be completed"}
		}

		diagnosis := strings.TrimSpace(finalDiagnosis)
		if diagnosis == "" {
			diagnosis = c.DiagnosisState.FinalDiagnosisCandidate
		}
		if diagnosis == "" {
			return nil, &Error{Kind: KindMissingDiagnosis, Op: op, ConsultationID: id, Path: c.DiagnosisState.CurrentPath,
				Message: "no diagnosis given and the decision tree has not reached one"}
		}

		state := c.DiagnosisState.clone()
		if state.CompletedAt == nil {
			now := s.now().UTC()
			state.CompletedAt = &now
		}
		status := StatusCompleted
		trimmedNotes := strings.TrimSpace(notes)
		return &Patch{
			DiagnosisState: &state,
			Status:         &status,
			FinalDiagnosis: &diagnosis,
			Notes:          &trimmedNotes,
		}, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	statusTransitions.WithLabelValues(string(StatusCompleted)).Inc()
	s.logger.Info().
		Str("consultation_id", id.String()).
		Str("final_diagnosis", updated.FinalDiagnosis).
		Bool("matches_candidate", updated.FinalDiagnosis == updated.DiagnosisState.FinalDiagnosisCandidate).
		Msg("consultation completed")
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	const op = "cancel"

	var changed bool
	updated, err := s.mutate(ctx, op, id, func(c *Consultation) (*Patch, error) {
		changed = false
		switch c.Status {
		case StatusCanceled:
			return nil, nil
		case StatusCompleted:
			return nil, &Error{Kind: KindInvalidState, Op: op, ConsultationID: id, Status: c.Status,
				Message: "a completed consultation cannot be canceled"}
		}
		changed = true
		status := StatusCanceled
		return &Patch{Status: &status}, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	if changed {
		statusTransitions.WithLabelValues(string(StatusCanceled)).Inc()
		s.logger.Info().Str("consultation_id", id.String()).Msg("consultation canceled")
	}
	return updated, nil
}

func (s *service) SaveAsDraft(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	const op = "save_as_draft"

	updated, err := s.mutate(ctx, op, id, func(c *Consultation) (*Patch, error) {
		if c.Status != StatusActive {
			return nil, &Error{Kind: KindInvalidState, Op: op, ConsultationID: id, Status: c.Status,
				Message: "only an active consultation can be saved as draft"}
		}
		status := StatusDraft
		return &Patch{Status: &status}, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	statusTransitions.WithLabelValues(string(StatusDraft)).Inc()
	s.logger.Info().Str("consultation_id", id.String()).Msg("consultation saved as draft")
	return updated, nil
}

func (s *service) Result(ctx context.Context, id uuid.UUID) (*Result, error) {
	const op = "result"

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}

	diagnosis := c.FinalDiagnosis
	if diagnosis == "" {
		n, ok := s.tree.NodeAt(c.DiagnosisState.CurrentPath)
		if !ok {
			return nil, s.fail(op, &Error{Kind: KindInconsistentState, Op: op, ConsultationID: id,
				Path: c.DiagnosisState.CurrentPath, Message: "stored path does not resolve in the decision tree"})
		}
		if d, isDiagnosis := n.(*decisiontree.Diagnosis); isDiagnosis {
			diagnosis = d.Label
		} else {
			diagnosis = c.DiagnosisState.FinalDiagnosisCandidate
		}
	}
	return buildResult(c, diagnosis, s.recs), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail("get", err)
	}
	return c, nil
}

func (s *service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error) {
	out, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, s.fail("list_by_patient", err)
	}
	return out, nil
}

func (s *service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Consultation, error) {
	out, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, s.fail("list_by_doctor", err)
	}
	return out, nil
}

func (s *service) Diagnoses() []decisiontree.DiagnosisPath {
	return s.tree.Diagnoses()
}

// questionFor recomputes the current question from the stored path. The
// cached CurrentQuestion text is never trusted.
func (s *service) questionFor(op string, c *Consultation) (decisiontree.QuestionView, error) {
	view, ok := s.tree.QuestionAt(c.DiagnosisState.CurrentPath)
	if !ok {
		return decisiontree.QuestionView{}, &Error{Kind: KindInconsistentState, Op: op, ConsultationID: c.ID,
			Path: c.DiagnosisState.CurrentPath, Message: "stored path does not resolve in the decision tree"}
	}
	return view, nil
}

// mutate loads the record, lets change compute a patch and writes it with the
// loaded version. A nil patch means nothing to do and returns the record as loaded.
func (s *service) mutate(ctx context.Context, op string, id uuid.UUID, change func(*Consultation) (*Patch, error)) (*Consultation, error) {
	unlock, err := s.lock(ctx, op, id, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		patch, err := change(c)
		if err != nil {
			return nil, err
		}
		if patch == nil {
			return c, nil
		}
		patch.ExpectedVersion = c.Version

		updated, err := s.repo.Update(ctx, id, *patch)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= s.maxWriteAttempts {
			return nil, err
		}
		writeRetries.Inc()
		s.logger.Warn().
			Str("op", op).
			Str("consultation_id", id.String()).
			Int("attempt", attempt).
			Msg("version conflict, retrying")
	}
}

func (s *service) lock(ctx context.Context, op string, id uuid.UUID, key string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "consultation:"+key)
	if err != nil {
		return nil, &Error{Kind: KindPersistence, Op: op, ConsultationID: id, Message: "acquire record lock", Err: err}
	}
	return unlock, nil
}

// fail records the failure and guarantees the returned error is an *Error.
// Untyped errors from collaborators become KindPersistence.
func (s *service) fail(op string, err error) error {
	kind := KindOf(err)
	if kind == "" {
		err = &Error{Kind: KindPersistence, Op: op, Err: err}
		kind = KindPersistence
	}
	operationErrors.WithLabelValues(op, string(kind)).Inc()

	ev := s.logger.Warn()
	if kind == KindInconsistentState || kind == KindPersistence {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("op", op).Str("kind", string(kind)).Msg("consultation operation failed")
	return err
}
