package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Profile Repository ===========

type profileRepoPG struct{ db queryable }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{db: pool} }

const profileCols = `id, user_id, blood_group, allergies, chronic_conditions,
	current_medications, insurance_provider, insurance_policy_number,
	insurance_expiry, preferred_language, notification_preferences,
	is_active, created_at, updated_at`

func scanProfile(row pgx.Row) (*PatientProfile, error) {
	var p PatientProfile
	err := row.Scan(&p.ID, &p.UserID, &p.BloodGroup, &p.Allergies, &p.ChronicConditions,
		&p.CurrentMedications, &p.InsuranceProvider, &p.InsurancePolicyNumber,
		&p.InsuranceExpiry, &p.PreferredLanguage, &p.NotificationPreferences,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *PatientProfile) error {
	p.ID = uuid.New()
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_profiles (id, user_id, blood_group, allergies,
			chronic_conditions, current_medications, insurance_provider,
			insurance_policy_number, insurance_expiry, preferred_language,
			notification_preferences, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.UserID, p.BloodGroup, p.Allergies,
		p.ChronicConditions, p.CurrentMedications, p.InsuranceProvider,
		p.InsurancePolicyNumber, p.InsuranceExpiry, p.PreferredLanguage,
		p.NotificationPreferences, p.IsActive)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrProfileExists
	}
	return err
}

func (r *profileRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	return scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileCols+` FROM patient_profiles WHERE user_id = $1`, userID))
}

func (r *profileRepoPG) Update(ctx context.Context, p *PatientProfile) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE patient_profiles SET blood_group=$2, allergies=$3,
			chronic_conditions=$4, current_medications=$5, insurance_provider=$6,
			insurance_policy_number=$7, insurance_expiry=$8, preferred_language=$9,
			notification_preferences=$10, is_active=$11, updated_at=NOW()
		WHERE user_id = $1`,
		p.UserID, p.BloodGroup, p.Allergies,
		p.ChronicConditions, p.CurrentMedications, p.InsuranceProvider,
		p.InsurancePolicyNumber, p.InsuranceExpiry, p.PreferredLanguage,
		p.NotificationPreferences, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepoPG) List(ctx context.Context, f ProfileFilter, limit, offset int) ([]*PatientProfile, int, error) {
	conds := []string{"1=1"}
	args := []interface{}{}
	arg := 1

	if len(f.UserIDs) > 0 {
		conds = append(conds, fmt.Sprintf("user_id = ANY($%d)", arg))
		args = append(args, f.UserIDs)
		arg++
	}
	if f.Query != "" {
		conds = append(conds, fmt.Sprintf("(allergies ILIKE $%d OR insurance_provider ILIKE $%d)", arg, arg))
		args = append(args, "%"+f.Query+"%")
		arg++
	}
	if f.BloodGroup != "" {
		conds = append(conds, fmt.Sprintf("blood_group = $%d", arg))
		args = append(args, f.BloodGroup)
		arg++
	}
	if f.OnlyActive {
		conds = append(conds, "is_active")
	}
	where := strings.Join(conds, " AND ")

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_profiles WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM patient_profiles WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, profileCols, where, arg, arg+1)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*PatientProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *profileRepoPG) Stats(ctx context.Context) (*ProfileStats, error) {
	stats := &ProfileStats{ByBloodGroup: make(map[string]int)}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active)
		FROM patient_profiles`).Scan(&stats.TotalPatients, &stats.ActivePatients)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT blood_group, COUNT(*) FROM patient_profiles
		WHERE blood_group IS NOT NULL GROUP BY blood_group`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var group string
		var count int
		if err := rows.Scan(&group, &count); err != nil {
			return nil, err
		}
		stats.ByBloodGroup[group] = count
	}
	return stats, rows.Err()
}

func (r *profileRepoPG) MissingProfileUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id FROM users u
		LEFT JOIN patient_profiles p ON p.user_id = u.id
		WHERE u.role = 'patient' AND p.id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =========== Medical Record Repository ===========

type recordRepoPG struct{ db queryable }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{db: pool} }

const recordCols = `id, patient_id, recorded_by, record_type, title, description,
	date_recorded, document_path, is_active, created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.PatientID, &m.RecordedBy, &m.RecordType, &m.Title,
		&m.Description, &m.DateRecorded, &m.DocumentPath, &m.IsActive,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &m, nil
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	_, err := r.db.Exec(ctx, `
		INSERT INTO medical_records (id, patient_id, recorded_by, record_type,
			title, description, date_recorded, document_path, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.PatientID, m.RecordedBy, m.RecordType,
		m.Title, m.Description, m.DateRecorded, m.DocumentPath, m.IsActive)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE medical_records SET record_type=$2, title=$3, description=$4,
			date_recorded=$5, document_path=$6, is_active=$7, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.RecordType, m.Title, m.Description,
		m.DateRecorded, m.DocumentPath, m.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE medical_records SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_records WHERE patient_id = $1 AND is_active`,
		patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+recordCols+` FROM medical_records
		WHERE patient_id = $1 AND is_active
		ORDER BY date_recorded DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*MedicalRecord
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *recordRepoPG) FilePath(ctx context.Context, id uuid.UUID) (string, error) {
	var path *string
	err := r.db.QueryRow(ctx,
		`SELECT document_path FROM medical_records WHERE id = $1`, id).Scan(&path)
	if err != nil {
		return "", mapPgError(err)
	}
	if path == nil {
		return "", nil
	}
	return *path, nil
}

func (r *recordRepoPG) IDsWithFiles(ctx context.Context) ([]uuid.UUID, error) {
	return collectIDs(r.db.Query(ctx, `
		SELECT id FROM medical_records
		WHERE is_active AND document_path IS NOT NULL AND document_path <> ''`))
}

// =========== Patient Document Repository ===========

type documentRepoPG struct{ db queryable }

func NewDocumentRepoPG(pool *pgxpool.Pool) DocumentRepository { return &documentRepoPG{db: pool} }

const documentCols = `id, patient_id, document_type, title, description, file_path,
	is_verified, verified_by, verified_at, uploaded_at, updated_at`

func scanDocument(row pgx.Row) (*PatientDocument, error) {
	var d PatientDocument
	err := row.Scan(&d.ID, &d.PatientID, &d.DocumentType, &d.Title, &d.Description,
		&d.FilePath, &d.IsVerified, &d.VerifiedBy, &d.VerifiedAt,
		&d.UploadedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &d, nil
}

func (r *documentRepoPG) Create(ctx context.Context, d *PatientDocument) error {
	d.ID = uuid.New()
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_documents (id, patient_id, document_type, title,
			description, file_path)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.PatientID, d.DocumentType, d.Title, d.Description, d.FilePath)
	return err
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientDocument, error) {
	return scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentCols+` FROM patient_documents WHERE id = $1`, id))
}

func (r *documentRepoPG) Update(ctx context.Context, d *PatientDocument) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE patient_documents SET document_type=$2, title=$3, description=$4,
			file_path=$5, is_verified=$6, verified_by=$7, verified_at=$8,
			updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.DocumentType, d.Title, d.Description,
		d.FilePath, d.IsVerified, d.VerifiedBy, d.VerifiedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patient_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PatientDocument, int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_documents WHERE patient_id = $1`,
		patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+documentCols+` FROM patient_documents
		WHERE patient_id = $1
		ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*PatientDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *documentRepoPG) FilePath(ctx context.Context, id uuid.UUID) (string, error) {
	var path string
	err := r.db.QueryRow(ctx,
		`SELECT file_path FROM patient_documents WHERE id = $1`, id).Scan(&path)
	if err != nil {
		return "", mapPgError(err)
	}
	return path, nil
}

func (r *documentRepoPG) IDsWithFiles(ctx context.Context) ([]uuid.UUID, error) {
	return collectIDs(r.db.Query(ctx,
		`SELECT id FROM patient_documents WHERE file_path <> ''`))
}

// =========== Patient Note Repository ===========

type noteRepoPG struct{ db queryable }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{db: pool} }

const noteCols = `id, patient_id, created_by, note, is_private, created_at, updated_at`

func scanNote(row pgx.Row) (*PatientNote, error) {
	var n PatientNote
	err := row.Scan(&n.ID, &n.PatientID, &n.CreatedBy, &n.Note, &n.IsPrivate,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &n, nil
}

func (r *noteRepoPG) Create(ctx context.Context, n *PatientNote) error {
	n.ID = uuid.New()
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_notes (id, patient_id, created_by, note, is_private)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.PatientID, n.CreatedBy, n.Note, n.IsPrivate)
	return err
}

func (r *noteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientNote, error) {
	return scanNote(r.db.QueryRow(ctx,
		`SELECT `+noteCols+` FROM patient_notes WHERE id = $1`, id))
}

func (r *noteRepoPG) Update(ctx context.Context, n *PatientNote) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE patient_notes SET note=$2, is_private=$3, updated_at=NOW()
		WHERE id = $1`,
		n.ID, n.Note, n.IsPrivate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *noteRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patient_notes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, vis NoteVisibility, viewerID uuid.UUID, limit, offset int) ([]*PatientNote, int, error) {
	where := "patient_id = $1"
	args := []interface{}{patientID}
	switch vis {
	case NotesPublicOnly:
		where += " AND NOT is_private"
	case NotesPublicAndOwn:
		where += " AND (NOT is_private OR created_by = $2)"
		args = append(args, viewerID)
	}

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_notes WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM patient_notes WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, noteCols, where, n+1, n+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*PatientNote
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, note)
	}
	return items, total, rows.Err()
}

// =========== Consultations ===========

type consultationsPG struct{ db queryable }

// NewConsultationsPG reads the scheduling service's consultations table.
func NewConsultationsPG(pool *pgxpool.Pool) Consultations { return &consultationsPG{db: pool} }

func (r *consultationsPG) HasConsulted(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM consultations
			WHERE doctor_id = $1 AND patient_id = $2
		)`, doctorID, patientID).Scan(&exists)
	return exists, err
}

func (r *consultationsPG) PatientIDs(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error) {
	return collectIDs(r.db.Query(ctx,
		`SELECT DISTINCT patient_id FROM consultations WHERE doctor_id = $1`, doctorID))
}

func collectIDs(rows pgx.Rows, err error) ([]uuid.UUID, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
