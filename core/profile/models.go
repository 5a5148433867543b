package profile

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/freetutor/freetutor/core"
)

// VerificationStatus gates whether a profile may participate in matching.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

// Type discriminates the two profile shapes in admin payloads.
type Type string

const (
	TypeStudent Type = "student"
	TypeTutor   Type = "tutor"
)

func (t Type) Valid() bool { return t == TypeStudent || t == TypeTutor }

// GradeLevels is the platform's grade catalogue (Hong Kong school system).
var GradeLevels = []string{
	"幼稚園 K1", "幼稚園 K2", "幼稚園 K3",
	"小學 P1", "小學 P2", "小學 P3", "小學 P4", "小學 P5", "小學 P6",
	"中學 S1", "中學 S2", "中學 S3", "中學 S4", "中學 S5", "中學 S6",
	"大專",
}

// EducationLevels is the tutor education catalogue.
var EducationLevels = []string{
	"中學文憑", "副學士學位", "學士學位", "碩士學位", "博士學位", "專業資格證書",
}

// ExamTypes lists the exam boards accepted in tutor exam results.
var ExamTypes = []string{"HKDSE", "HKCEE", "HKALE", "A-Level", "GCSE/IGCSE", "IB"}

type StudentProfile struct {
	ID                      string             `json:"id"`
	UserID                  string             `json:"user_id"`
	FullName                string             `json:"full_name"`
	Phone                   string             `json:"phone"`
	GradeLevel              string             `json:"grade_level"`
	SubjectsNeeded          []string           `json:"subjects_needed"`
	SpecialNeedsDescription string             `json:"special_needs_description"`
	VerificationDocuments   []string           `json:"verification_documents"`
	VerificationStatus      VerificationStatus `json:"verification_status"`
	VerificationNotes       string             `json:"verification_notes,omitempty"`
	CreatedAt               time.Time          `json:"created_at"` // UTC
	UpdatedAt               time.Time          `json:"updated_at"` // UTC
}

func (p *StudentProfile) Approved() bool { return p.VerificationStatus == VerificationApproved }

type ExamResult struct {
	ExamType string `json:"exam_type" validate:"required,examtype"`
	Subject  string `json:"subject" validate:"required"`
	Grade    string `json:"grade" validate:"required"`
}

// TimeSlot is a HH:MM interval within a day.
type TimeSlot struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

type WeeklyAvailability struct {
	Monday    []TimeSlot `json:"monday" validate:"dive"`
	Tuesday   []TimeSlot `json:"tuesday" validate:"dive"`
	Wednesday []TimeSlot `json:"wednesday" validate:"dive"`
	Thursday  []TimeSlot `json:"thursday" validate:"dive"`
	Friday    []TimeSlot `json:"friday" validate:"dive"`
	Saturday  []TimeSlot `json:"saturday" validate:"dive"`
	Sunday    []TimeSlot `json:"sunday" validate:"dive"`
}

type TutorProfile struct {
	ID                    string             `json:"id"`
	UserID                string             `json:"user_id"`
	FullName              string             `json:"full_name"`
	Phone                 string             `json:"phone"`
	EducationLevel        string             `json:"education_level"`
	SubjectsTaught        []string           `json:"subjects_taught"`
	Bio                   string             `json:"bio"`
	ExamResults           []ExamResult       `json:"exam_results"`
	Availability          WeeklyAvailability `json:"availability"`
	PhotoKey              string             `json:"photo_key,omitempty"`
	VerificationDocuments []string           `json:"verification_documents"`
	VerificationStatus    VerificationStatus `json:"verification_status"`
	VerificationNotes     string             `json:"verification_notes,omitempty"`
	CreatedAt             time.Time          `json:"created_at"` // UTC
	UpdatedAt             time.Time          `json:"updated_at"` // UTC
}

func (p *TutorProfile) Approved() bool { return p.VerificationStatus == VerificationApproved }

// NewStudentProfile contains the information needed to create a StudentProfile.
type NewStudentProfile struct {
	FullName                string   `json:"full_name" validate:"required"`
	Phone                   string   `json:"phone" validate:"required"`
	GradeLevel              string   `json:"grade_level" validate:"required,gradelevel"`
	SubjectsNeeded          []string `json:"subjects_needed" validate:"required,min=1,dive,required"`
	SpecialNeedsDescription string   `json:"special_needs_description"`
}

func (np *NewStudentProfile) Validate(validate *validator.Validate) error {
	np.FullName = core.CleanString(np.FullName)
	np.Phone = core.CleanString(np.Phone)
	return validate.Struct(np)
}

// UpdateStudentProfile defines what a student may change on their own profile.
// Zero-value fields are left untouched.
type UpdateStudentProfile struct {
	FullName                string   `json:"full_name"`
	Phone                   string   `json:"phone"`
	GradeLevel              string   `json:"grade_level" validate:"omitempty,gradelevel"`
	SubjectsNeeded          []string `json:"subjects_needed" validate:"omitempty,min=1,dive,required"`
	SpecialNeedsDescription *string  `json:"special_needs_description"`
}

func (up *UpdateStudentProfile) Validate(validate *validator.Validate) error {
	up.FullName = core.CleanString(up.FullName)
	up.Phone = core.CleanString(up.Phone)
	return validate.Struct(up)
}

// NewTutorProfile contains the information needed to create a TutorProfile.
type NewTutorProfile struct {
	FullName       string             `json:"full_name" validate:"required"`
	Phone          string             `json:"phone" validate:"required"`
	EducationLevel string             `json:"education_level" validate:"required,educationlevel"`
	SubjectsTaught []string           `json:"subjects_taught" validate:"required,min=1,dive,required"`
	Bio            string             `json:"bio" validate:"required"`
	ExamResults    []ExamResult       `json:"exam_results" validate:"omitempty,dive"`
	Availability   WeeklyAvailability `json:"availability"`
}

func (np *NewTutorProfile) Validate(validate *validator.Validate) error {
	np.FullName = core.CleanString(np.FullName)
	np.Phone = core.CleanString(np.Phone)
	return validate.Struct(np)
}

// UpdateTutorProfile defines what a tutor may change on their own profile.
// Zero-value fields are left untouched.
type UpdateTutorProfile struct {
	FullName       string              `json:"full_name"`
	Phone          string              `json:"phone"`
	EducationLevel string              `json:"education_level" validate:"omitempty,educationlevel"`
	SubjectsTaught []string            `json:"subjects_taught" validate:"omitempty,min=1,dive,required"`
	Bio            *string             `json:"bio"`
	ExamResults    []ExamResult        `json:"exam_results" validate:"omitempty,dive"`
	Availability   *WeeklyAvailability `json:"availability"`
	PhotoKey       *string             `json:"photo_key"`
}

func (up *UpdateTutorProfile) Validate(validate *validator.Validate) error {
	up.FullName = core.CleanString(up.FullName)
	up.Phone = core.CleanString(up.Phone)
	return validate.Struct(up)
}

// VerifyProfile is the admin verification decision payload.
type VerifyProfile struct {
	ProfileID   string `json:"profile_id" validate:"required"`
	ProfileType Type   `json:"profile_type" validate:"required,profiletype"`
	Action      string `json:"action" validate:"required,oneof=approve reject"`
	Notes       string `json:"notes"`
}

func (v *VerifyProfile) Validate(validate *validator.Validate) error {
	v.Notes = core.CleanString(v.Notes)
	return validate.Struct(v)
}

func (v VerifyProfile) Status() VerificationStatus {
	if v.Action == "approve" {
		return VerificationApproved
	}
	return VerificationRejected
}

// GetFilter selects a single profile; fields are OR'ed.
type GetFilter struct {
	ID     string
	UserID string
}

func (f GetFilter) IsEmpty() bool { return f.ID == "" && f.UserID == "" }

// PendingVerifications groups profiles awaiting an admin decision.
type PendingVerifications struct {
	Students []StudentProfile `json:"students"`
	Tutors   []TutorProfile   `json:"tutors"`
}
