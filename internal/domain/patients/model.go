package patients

import (
	"time"

	"github.com/google/uuid"
)

// Entity kinds used by the upload pipeline.
const (
	KindMedicalRecord   = "medical_record"
	KindPatientDocument = "patient_document"
)

// ValidRecordTypes lists the accepted medical record categories.
var ValidRecordTypes = map[string]bool{
	"lab_report":   true,
	"prescription": true,
	"diagnosis":    true,
	"vaccination":  true,
	"surgery":      true,
	"allergy":      true,
	"other":        true,
}

// ValidDocumentTypes lists the accepted patient document categories.
var ValidDocumentTypes = map[string]bool{
	"id_proof":       true,
	"address_proof":  true,
	"insurance_card": true,
	"medical_report": true,
	"prescription":   true,
	"lab_report":     true,
	"other":          true,
}

// ValidBloodGroups lists the accepted blood group values.
var ValidBloodGroups = map[string]bool{
	"A+": true, "A-": true,
	"B+": true, "B-": true,
	"AB+": true, "AB-": true,
	"O+": true, "O-": true,
}

// MedicalRecord is a clinical entry in a patient's history. DocumentPath,
// when set, is the path of the attached file relative to the media root
// (e.g. "medical_records/2026/scan.pdf").
type MedicalRecord struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	RecordedBy   *uuid.UUID `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordType   string     `db:"record_type" json:"record_type"`
	Title        string     `db:"title" json:"title"`
	Description  *string    `db:"description" json:"description,omitempty"`
	DateRecorded time.Time  `db:"date_recorded" json:"date_recorded"`
	DocumentPath *string    `db:"document_path" json:"document_path,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FileRelPath returns the attached file path, empty when none.
func (r *MedicalRecord) FileRelPath() string {
	if r.DocumentPath == nil {
		return ""
	}
	return *r.DocumentPath
}

// PatientDocument is an administrative file a patient or staff member
// uploaded: proof of identity, insurance cards, external reports.
type PatientDocument struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	DocumentType string     `db:"document_type" json:"document_type"`
	Title        string     `db:"title" json:"title"`
	Description  *string    `db:"description" json:"description,omitempty"`
	FilePath     string     `db:"file_path" json:"file_path"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	VerifiedBy   *uuid.UUID `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt   *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	UploadedAt   time.Time  `db:"uploaded_at" json:"uploaded_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PatientProfile holds the medical profile of a patient user. UserID is
// the platform user this profile belongs to; routes address patients by
// that ID.
type PatientProfile struct {
	ID                      uuid.UUID       `db:"id" json:"id"`
	UserID                  uuid.UUID       `db:"user_id" json:"user_id"`
	BloodGroup              *string         `db:"blood_group" json:"blood_group,omitempty"`
	Allergies               *string         `db:"allergies" json:"allergies,omitempty"`
	ChronicConditions       []string        `db:"chronic_conditions" json:"chronic_conditions"`
	CurrentMedications      []string        `db:"current_medications" json:"current_medications"`
	InsuranceProvider       *string         `db:"insurance_provider" json:"insurance_provider,omitempty"`
	InsurancePolicyNumber   *string         `db:"insurance_policy_number" json:"insurance_policy_number,omitempty"`
	InsuranceExpiry         *time.Time      `db:"insurance_expiry" json:"insurance_expiry,omitempty"`
	PreferredLanguage       string          `db:"preferred_language" json:"preferred_language"`
	NotificationPreferences map[string]bool `db:"notification_preferences" json:"notification_preferences"`
	IsActive                bool            `db:"is_active" json:"is_active"`
	CreatedAt               time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at" json:"updated_at"`
}

// PatientNote is free-form staff commentary on a patient. Private notes
// are visible to their author and admins but never to the patient.
type PatientNote struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	CreatedBy uuid.UUID `db:"created_by" json:"created_by"`
	Note      string    `db:"note" json:"note"`
	IsPrivate bool      `db:"is_private" json:"is_private"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileStats summarizes the patient population for the admin dashboard.
type ProfileStats struct {
	TotalPatients  int            `json:"total_patients"`
	ActivePatients int            `json:"active_patients"`
	ByBloodGroup   map[string]int `json:"by_blood_group"`
}
