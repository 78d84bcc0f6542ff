package patients

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrProfileExists = errors.New("profile already exists for user")
	ErrForbidden     = errors.New("access denied")
)

// ProfileFilter narrows profile listings. UserIDs restricts to the given
// patient users (used for doctor scoping); Query matches the free-text
// search fields; BloodGroup filters exactly.
type ProfileFilter struct {
	UserIDs    []uuid.UUID
	Query      string
	BloodGroup string
	OnlyActive bool
}

type ProfileRepository interface {
	Create(ctx context.Context, p *PatientProfile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*PatientProfile, error)
	Update(ctx context.Context, p *PatientProfile) error
	List(ctx context.Context, f ProfileFilter, limit, offset int) ([]*PatientProfile, int, error)
	Stats(ctx context.Context) (*ProfileStats, error)
	// MissingProfileUserIDs returns patient-role users without a profile.
	MissingProfileUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error)
	// FilePath re-reads the attached file path; ErrNotFound when the
	// record is gone, empty string when no file is attached.
	FilePath(ctx context.Context, id uuid.UUID) (string, error)
	// IDsWithFiles returns ids of active records with an attached file.
	IDsWithFiles(ctx context.Context) ([]uuid.UUID, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, d *PatientDocument) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientDocument, error)
	Update(ctx context.Context, d *PatientDocument) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PatientDocument, int, error)
	FilePath(ctx context.Context, id uuid.UUID) (string, error)
	IDsWithFiles(ctx context.Context) ([]uuid.UUID, error)
}

// NoteVisibility controls which notes a listing returns.
type NoteVisibility int

const (
	// NotesAll returns every note. Admin view.
	NotesAll NoteVisibility = iota
	// NotesPublicOnly hides private notes. Patient view.
	NotesPublicOnly
	// NotesPublicAndOwn adds the viewer's own private notes. Staff view.
	NotesPublicAndOwn
)

type NoteRepository interface {
	Create(ctx context.Context, n *PatientNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientNote, error)
	Update(ctx context.Context, n *PatientNote) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, vis NoteVisibility, viewerID uuid.UUID, limit, offset int) ([]*PatientNote, int, error)
}

// Consultations answers which patients a doctor has seen. The
// consultations table is owned by the scheduling service; this service
// only reads it for access scoping.
type Consultations interface {
	HasConsulted(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	PatientIDs(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error)
}
