package patients

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eclinic/eclinic/internal/platform/auth"
)

// UploadTrigger is fired after every successful save of a file-bearing
// entity. Implementations must never fail the save.
type UploadTrigger interface {
	Trigger(ctx context.Context, kind, entityID string)
}

// UploadTriggerFunc is a function adapter for UploadTrigger.
type UploadTriggerFunc func(ctx context.Context, kind, entityID string)

func (f UploadTriggerFunc) Trigger(ctx context.Context, kind, entityID string) {
	f(ctx, kind, entityID)
}

type Service struct {
	profiles  ProfileRepository
	records   RecordRepository
	documents DocumentRepository
	notes     NoteRepository
	consults  Consultations
	trigger   UploadTrigger
}

func NewService(profiles ProfileRepository, records RecordRepository, documents DocumentRepository, notes NoteRepository, consults Consultations, trigger UploadTrigger) *Service {
	return &Service{
		profiles:  profiles,
		records:   records,
		documents: documents,
		notes:     notes,
		consults:  consults,
		trigger:   trigger,
	}
}

func viewerID(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, ErrForbidden
	}
	return id, nil
}

// canAccessPatient enforces the scoping rules: patients reach only their
// own data, clinical staff reach patients they have consulted, admins
// reach everyone.
func (s *Service) canAccessPatient(ctx context.Context, patientID uuid.UUID) error {
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return nil
	}

	viewer, err := viewerID(ctx)
	if err != nil {
		return err
	}

	if auth.IsStaff(ctx) {
		ok, err := s.consults.HasConsulted(ctx, viewer, patientID)
		if err != nil {
			return fmt.Errorf("checking consultation: %w", err)
		}
		if !ok {
			return ErrForbidden
		}
		return nil
	}

	if viewer != patientID {
		return ErrForbidden
	}
	return nil
}

// -- Profiles --

func (s *Service) validateProfile(p *PatientProfile) error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if p.BloodGroup != nil && !ValidBloodGroups[*p.BloodGroup] {
		return fmt.Errorf("invalid blood_group: %s", *p.BloodGroup)
	}
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = "en"
	}
	if p.ChronicConditions == nil {
		p.ChronicConditions = []string{}
	}
	if p.CurrentMedications == nil {
		p.CurrentMedications = []string{}
	}
	if p.NotificationPreferences == nil {
		p.NotificationPreferences = map[string]bool{"email": true, "sms": false}
	}
	return nil
}

func (s *Service) CreateProfile(ctx context.Context, p *PatientProfile) error {
	if auth.HasRole(ctx, auth.RolePatient) && !auth.IsStaff(ctx) {
		// Patients only ever create their own profile.
		viewer, err := viewerID(ctx)
		if err != nil {
			return err
		}
		p.UserID = viewer
	}
	if err := s.validateProfile(p); err != nil {
		return err
	}
	p.IsActive = true
	return s.profiles.Create(ctx, p)
}

func (s *Service) GetProfile(ctx context.Context, patientID uuid.UUID) (*PatientProfile, error) {
	if err := s.canAccessPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.profiles.GetByUserID(ctx, patientID)
}

func (s *Service) UpdateProfile(ctx context.Context, p *PatientProfile) error {
	if err := s.canAccessPatient(ctx, p.UserID); err != nil {
		return err
	}
	if err := s.validateProfile(p); err != nil {
		return err
	}
	return s.profiles.Update(ctx, p)
}

func (s *Service) ListProfiles(ctx context.Context, limit, offset int) ([]*PatientProfile, int, error) {
	f := ProfileFilter{OnlyActive: true}
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		viewer, err := viewerID(ctx)
		if err != nil {
			return nil, 0, err
		}
		if auth.IsStaff(ctx) {
			ids, err := s.consults.PatientIDs(ctx, viewer)
			if err != nil {
				return nil, 0, fmt.Errorf("listing consulted patients: %w", err)
			}
			if len(ids) == 0 {
				return []*PatientProfile{}, 0, nil
			}
			f.UserIDs = ids
		} else {
			f.UserIDs = []uuid.UUID{viewer}
		}
	}
	return s.profiles.List(ctx, f, limit, offset)
}

func (s *Service) SearchProfiles(ctx context.Context, query, bloodGroup string, limit, offset int) ([]*PatientProfile, int, error) {
	if bloodGroup != "" && !ValidBloodGroups[bloodGroup] {
		return nil, 0, fmt.Errorf("invalid blood_group: %s", bloodGroup)
	}
	f := ProfileFilter{Query: query, BloodGroup: bloodGroup, OnlyActive: true}
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		viewer, err := viewerID(ctx)
		if err != nil {
			return nil, 0, err
		}
		ids, err := s.consults.PatientIDs(ctx, viewer)
		if err != nil {
			return nil, 0, fmt.Errorf("listing consulted patients: %w", err)
		}
		if len(ids) == 0 {
			return []*PatientProfile{}, 0, nil
		}
		f.UserIDs = ids
	}
	return s.profiles.List(ctx, f, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*ProfileStats, error) {
	return s.profiles.Stats(ctx)
}

// CreateMissingProfiles inserts a default profile for every patient-role
// user lacking one. Returns the user IDs it created profiles for.
func (s *Service) CreateMissingProfiles(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.profiles.MissingProfileUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding users without profile: %w", err)
	}

	var created []uuid.UUID
	for _, userID := range ids {
		p := &PatientProfile{UserID: userID, IsActive: true}
		if err := s.validateProfile(p); err != nil {
			return created, err
		}
		if err := s.profiles.Create(ctx, p); err != nil {
			return created, fmt.Errorf("creating profile for %s: %w", userID, err)
		}
		created = append(created, userID)
	}
	return created, nil
}

// -- Medical records --

func (s *Service) validateRecord(r *MedicalRecord) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !ValidRecordTypes[r.RecordType] {
		return fmt.Errorf("invalid record_type: %s", r.RecordType)
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

func (s *Service) CreateRecord(ctx context.Context, r *MedicalRecord) error {
	if err := s.canAccessPatient(ctx, r.PatientID); err != nil {
		return err
	}
	if err := s.validateRecord(r); err != nil {
		return err
	}
	if r.DateRecorded.IsZero() {
		r.DateRecorded = time.Now().UTC()
	}
	if r.RecordedBy == nil {
		if viewer, err := viewerID(ctx); err == nil {
			r.RecordedBy = &viewer
		}
	}
	r.IsActive = true

	if err := s.records.Create(ctx, r); err != nil {
		return err
	}
	s.trigger.Trigger(ctx, KindMedicalRecord, r.ID.String())
	return nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	r, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canAccessPatient(ctx, r.PatientID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) UpdateRecord(ctx context.Context, r *MedicalRecord) error {
	existing, err := s.records.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	if err := s.canAccessPatient(ctx, existing.PatientID); err != nil {
		return err
	}
	r.PatientID = existing.PatientID
	r.RecordedBy = existing.RecordedBy
	if err := s.validateRecord(r); err != nil {
		return err
	}
	if r.DateRecorded.IsZero() {
		r.DateRecorded = existing.DateRecorded
	}
	r.IsActive = existing.IsActive

	if err := s.records.Update(ctx, r); err != nil {
		return err
	}
	s.trigger.Trigger(ctx, KindMedicalRecord, r.ID.String())
	return nil
}

// DeleteRecord soft-deactivates; clinical history is never hard-deleted.
func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	r, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.canAccessPatient(ctx, r.PatientID); err != nil {
		return err
	}
	return s.records.Deactivate(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	if err := s.canAccessPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

// -- Patient documents --

func (s *Service) validateDocument(d *PatientDocument) error {
	if d.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !ValidDocumentTypes[d.DocumentType] {
		return fmt.Errorf("invalid document_type: %s", d.DocumentType)
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if d.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	return nil
}

func (s *Service) CreateDocument(ctx context.Context, d *PatientDocument) error {
	if err := s.canAccessPatient(ctx, d.PatientID); err != nil {
		return err
	}
	if err := s.validateDocument(d); err != nil {
		return err
	}

	if err := s.documents.Create(ctx, d); err != nil {
		return err
	}
	s.trigger.Trigger(ctx, KindPatientDocument, d.ID.String())
	return nil
}

func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*PatientDocument, error) {
	d, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canAccessPatient(ctx, d.PatientID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) UpdateDocument(ctx context.Context, d *PatientDocument) error {
	existing, err := s.documents.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if err := s.canAccessPatient(ctx, existing.PatientID); err != nil {
		return err
	}
	d.PatientID = existing.PatientID
	// Verification state only changes through VerifyDocument.
	d.IsVerified = existing.IsVerified
	d.VerifiedBy = existing.VerifiedBy
	d.VerifiedAt = existing.VerifiedAt
	if err := s.validateDocument(d); err != nil {
		return err
	}

	if err := s.documents.Update(ctx, d); err != nil {
		return err
	}
	s.trigger.Trigger(ctx, KindPatientDocument, d.ID.String())
	return nil
}

func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	d, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.canAccessPatient(ctx, d.PatientID); err != nil {
		return err
	}
	return s.documents.Delete(ctx, id)
}

func (s *Service) ListDocuments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PatientDocument, int, error) {
	if err := s.canAccessPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.documents.ListByPatient(ctx, patientID, limit, offset)
}

// VerifyDocument marks a document as verified by the calling staff member.
func (s *Service) VerifyDocument(ctx context.Context, id uuid.UUID) (*PatientDocument, error) {
	d, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canAccessPatient(ctx, d.PatientID); err != nil {
		return nil, err
	}

	viewer, err := viewerID(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	d.IsVerified = true
	d.VerifiedBy = &viewer
	d.VerifiedAt = &now

	if err := s.documents.Update(ctx, d); err != nil {
		return nil, err
	}
	s.trigger.Trigger(ctx, KindPatientDocument, d.ID.String())
	return d, nil
}

// -- Patient notes --

func (s *Service) CreateNote(ctx context.Context, n *PatientNote) error {
	if n.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if n.Note == "" {
		return fmt.Errorf("note is required")
	}
	if err := s.canAccessPatient(ctx, n.PatientID); err != nil {
		return err
	}
	viewer, err := viewerID(ctx)
	if err != nil {
		return err
	}
	n.CreatedBy = viewer
	return s.notes.Create(ctx, n)
}

func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*PatientNote, error) {
	n, err := s.notes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canAccessPatient(ctx, n.PatientID); err != nil {
		return nil, err
	}
	if n.IsPrivate && !noteAuthorOrAdmin(ctx, n) {
		// Private notes do not exist as far as anyone else is concerned.
		return nil, ErrNotFound
	}
	return n, nil
}

// noteAuthorOrAdmin gates private-note visibility and all note edits.
func noteAuthorOrAdmin(ctx context.Context, n *PatientNote) bool {
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return true
	}
	viewer, err := viewerID(ctx)
	if err != nil {
		return false
	}
	return viewer == n.CreatedBy
}

func (s *Service) UpdateNote(ctx context.Context, n *PatientNote) error {
	existing, err := s.notes.GetByID(ctx, n.ID)
	if err != nil {
		return err
	}
	if !noteAuthorOrAdmin(ctx, existing) {
		return ErrForbidden
	}
	if n.Note == "" {
		return fmt.Errorf("note is required")
	}
	n.PatientID = existing.PatientID
	n.CreatedBy = existing.CreatedBy
	return s.notes.Update(ctx, n)
}

func (s *Service) DeleteNote(ctx context.Context, id uuid.UUID) error {
	existing, err := s.notes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !noteAuthorOrAdmin(ctx, existing) {
		return ErrForbidden
	}
	return s.notes.Delete(ctx, id)
}

func (s *Service) ListNotes(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PatientNote, int, error) {
	if err := s.canAccessPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}

	vis := NotesPublicOnly
	var viewer uuid.UUID
	if auth.HasRole(ctx, auth.RoleAdmin) {
		vis = NotesAll
	} else if auth.IsStaff(ctx) {
		v, err := viewerID(ctx)
		if err != nil {
			return nil, 0, err
		}
		vis = NotesPublicAndOwn
		viewer = v
	}
	return s.notes.ListByPatient(ctx, patientID, vis, viewer, limit, offset)
}
