package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Repository stores consultations. Implementations return *Error values:
// KindNotFound for a missing record, KindConflict for a stale ExpectedVersion
// or a second live session for the same patient/doctor pair, and
// KindPersistence for anything else. Nothing is retried here.
type Repository interface {
	Create(ctx context.Context, c *Consultation) (*Consultation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*Consultation, error)
	// FindActiveOrDraft returns the newest draft or active consultation for the pair.
	FindActiveOrDraft(ctx context.Context, patientID, doctorID uuid.UUID) (*Consultation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Consultation, error)
}

const consultationsTable = "consultations"

// pgUniqueViolation is the SQLSTATE raised by the live-session unique index.
const pgUniqueViolation = "23505"

var consultationColumns = []interface{}{
	"id", "patient_id", "doctor_id", "status", "diagnosis_state",
	"final_diagnosis", "notes", "version", "created_at", "updated_at",
}

type postgresRepo struct {
	db  *sql.DB
	qb  *goqu.Database
	now func() time.Time
}

// NewRepository returns a PostgreSQL-backed Repository. The schema lives in migrations/.
func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{
		db:  db,
		qb:  goqu.New("postgres", db),
		now: time.Now,
	}
}

func (r *postgresRepo) Create(ctx context.Context, c *Consultation) (*Consultation, error) {
	const op = "create"

	state, err := json.Marshal(c.DiagnosisState)
	if err != nil {
		return nil, persistence(op, c.ID, fmt.Errorf("marshal diagnosis state: %w", err))
	}

	out := c.Clone()
	now := r.now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	out.Version = 1

	query, args, err := r.qb.Insert(consultationsTable).Prepared(true).Rows(goqu.Record{
		"id":              out.ID,
		"patient_id":      out.PatientID,
		"doctor_id":       out.DoctorID,
		"status":          string(out.Status),
		"diagnosis_state": string(state),
		"final_diagnosis": nullString(out.FinalDiagnosis),
		"notes":           nullString(out.Notes),
		"version":         out.Version,
		"created_at":      out.CreatedAt,
		"updated_at":      out.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return nil, persistence(op, c.ID, fmt.Errorf("build insert: %w", err))
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, conflict(op, c.ID, "a live consultation already exists for this patient and doctor")
		}
		return nil, persistence(op, c.ID, err)
	}
	return out, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	const op = "get"

	query, args, err := r.qb.From(consultationsTable).Prepared(true).
		Select(consultationColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, persistence(op, id, fmt.Errorf("build select: %w", err))
	}

	c, err := scanConsultation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, id)
	}
	if err != nil {
		return nil, persistence(op, id, err)
	}
	return c, nil
}

func (r *postgresRepo) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Consultation, error) {
	const op = "update"

	set := goqu.Record{
		"updated_at": r.now().UTC(),
		"version":    goqu.L(`"version" + 1`),
	}
	if patch.DiagnosisState != nil {
		state, err := json.Marshal(*patch.DiagnosisState)
		if err != nil {
			return nil, persistence(op, id, fmt.Errorf("marshal diagnosis state: %w", err))
		}
		set["diagnosis_state"] = string(state)
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.FinalDiagnosis != nil {
		set["final_diagnosis"] = nullString(*patch.FinalDiagnosis)
	}
	if patch.Notes != nil {
		set["notes"] = nullString(*patch.Notes)
	}

	query, args, err := r.qb.Update(consultationsTable).Prepared(true).
		Set(set).
		Where(goqu.Ex{"id": id, "version": patch.ExpectedVersion}).
		Returning(consultationColumns...).
		ToSQL()
	if err != nil {
		return nil, persistence(op, id, fmt.Errorf("build update: %w", err))
	}

	c, err := scanConsultation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is gone or someone else bumped the version first.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, conflict(op, id, fmt.Sprintf("version %d is stale", patch.ExpectedVersion))
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, conflict(op, id, "a live consultation already exists for this patient and doctor")
		}
		return nil, persistence(op, id, err)
	}
	return c, nil
}

func (r *postgresRepo) FindActiveOrDraft(ctx context.Context, patientID, doctorID uuid.UUID) (*Consultation, error) {
	const op = "find_live"

	query, args, err := r.qb.From(consultationsTable).Prepared(true).
		Select(consultationColumns...).
		Where(goqu.Ex{
			"patient_id": patientID,
			"doctor_id":  doctorID,
			"status":     []string{string(StatusDraft), string(StatusActive)},
		}).
		Order(goqu.C("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, persistence(op, uuid.Nil, fmt.Errorf("build select: %w", err))
	}

	c, err := scanConsultation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Kind: KindNotFound, Op: op, Message: "no live consultation for patient and doctor"}
	}
	if err != nil {
		return nil, persistence(op, uuid.Nil, err)
	}
	return c, nil
}

func (r *postgresRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error) {
	return r.list(ctx, "list_by_patient", goqu.Ex{"patient_id": patientID})
}

func (r *postgresRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Consultation, error) {
	return r.list(ctx, "list_by_doctor", goqu.Ex{"doctor_id": doctorID})
}

func (r *postgresRepo) list(ctx context.Context, op string, where goqu.Ex) ([]*Consultation, error) {
	query, args, err := r.qb.From(consultationsTable).Prepared(true).
		Select(consultationColumns...).
		Where(where).
		Order(goqu.C("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, persistence(op, uuid.Nil, fmt.Errorf("build select: %w", err))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(op, uuid.Nil, err)
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, persistence(op, uuid.Nil, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(op, uuid.Nil, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsultation(row rowScanner) (*Consultation, error) {
	var (
		c                     Consultation
		status                string
		stateJSON             []byte
		finalDiagnosis, notes sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.DoctorID,
		&status,
		&stateJSON,
		&finalDiagnosis,
		&notes,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &c.DiagnosisState); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnosis state: %w", err)
		}
	}
	c.FinalDiagnosis = finalDiagnosis.String
	c.Notes = notes.String
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
