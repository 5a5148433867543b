package matching

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/freetutor/freetutor/core"
)

// RequestStatus is the lifecycle state of a TutoringRequest.
// MATCHED is terminal; OPEN and CLOSED flip via explicit status updates.
type RequestStatus string

const (
	RequestOpen    RequestStatus = "OPEN"
	RequestMatched RequestStatus = "MATCHED"
	RequestClosed  RequestStatus = "CLOSED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestOpen, RequestMatched, RequestClosed:
		return true
	}
	return false
}

// ApplicationStatus is the lifecycle state of a TutorApplication.
// ACCEPTED and REJECTED are terminal.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationAccepted ApplicationStatus = "ACCEPTED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// ConnectionStatus is the state of a ConnectionRequest. Connections created
// by the accept transaction start out ACCEPTED.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "PENDING"
	ConnectionAccepted ConnectionStatus = "ACCEPTED"
	ConnectionDeclined ConnectionStatus = "DECLINED"
)

// TutoringRequest is a student's posted need for tutoring.
// SelectedTutorID is set iff Status is MATCHED.
type TutoringRequest struct {
	ID              string        `json:"id"`
	StudentID       string        `json:"student_id"` // student profile ID
	Title           string        `json:"title"`
	Subjects        []string      `json:"subjects"`
	GradeLevel      string        `json:"grade_level"`
	Description     string        `json:"description"`
	Status          RequestStatus `json:"status"`
	SelectedTutorID string        `json:"selected_tutor_id,omitempty"` // tutor profile ID

	// ApplicationCount is populated on browse listings, Applications on the
	// owning student's own listing.
	ApplicationCount int                `json:"application_count"`
	Applications     []TutorApplication `json:"applications,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// TutorApplication is a tutor's bid on a request; unique per (request, tutor).
type TutorApplication struct {
	ID               string            `json:"id"`
	RequestID        string            `json:"request_id"`
	TutorID          string            `json:"tutor_id"` // tutor profile ID
	Message          string            `json:"message"`
	ProposedSchedule string            `json:"proposed_schedule,omitempty"`
	Status           ApplicationStatus `json:"status"`

	// Request is populated on the tutor's own listing.
	Request *TutoringRequest `json:"request,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// ConnectionRequest is the realized pairing once a request is matched.
// TutoringRequestID is cleared if the originating request is later deleted.
type ConnectionRequest struct {
	ID                string           `json:"id"`
	StudentID         string           `json:"student_id"` // student profile ID
	TutorID           string           `json:"tutor_id"`   // tutor profile ID
	TutoringRequestID string           `json:"tutoring_request_id,omitempty"`
	Status            ConnectionStatus `json:"status"`
	Notes             string           `json:"notes"`
	CreatedAt         time.Time        `json:"created_at"` // UTC
	UpdatedAt         time.Time        `json:"updated_at"` // UTC
}

// TutorContact is the contact information disclosed to the student when a
// match is made, and only then.
type TutorContact struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	EducationLevel string `json:"education_level"`
}

// MatchResult is returned by a successful accept.
type MatchResult struct {
	Application  TutorApplication  `json:"application"`
	Connection   ConnectionRequest `json:"connection"`
	TutorContact TutorContact      `json:"tutor_contact"`
}

// NewRequest contains the information needed to post a TutoringRequest.
// Grade level is copied from the student's profile, not client-provided.
type NewRequest struct {
	Title       string   `json:"title" validate:"required"`
	Subjects    []string `json:"subjects" validate:"required,min=1,dive,required"`
	Description string   `json:"description" validate:"required"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Description = core.CleanString(nr.Description)
	return validate.Struct(nr)
}

// NewApplication contains the information needed to apply to a request.
type NewApplication struct {
	RequestID        string `json:"request_id" validate:"required"`
	Message          string `json:"message" validate:"required"`
	ProposedSchedule string `json:"proposed_schedule"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.Message = core.CleanString(na.Message)
	return validate.Struct(na)
}

// UpdateRequest is the owner's close/reopen payload.
type UpdateRequest struct {
	Status RequestStatus `json:"status" validate:"required,oneof=OPEN CLOSED"`
}

func (ur UpdateRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(ur)
}

// ApplicationDecision is the owner's accept/reject payload.
type ApplicationDecision struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

func (ad ApplicationDecision) Validate(validate *validator.Validate) error {
	return validate.Struct(ad)
}

// QueryFilter narrows a browse listing; zero-value fields are ignored.
type QueryFilter struct {
	Status     RequestStatus
	Subject    string
	GradeLevel string
}

// ConnectionFilter selects connections by either party; fields are OR'ed.
type ConnectionFilter struct {
	StudentID string
	TutorID   string
}

// Stats is the public platform counters payload.
type Stats struct {
	ApprovedStudents    int `json:"approved_students"`
	ApprovedTutors      int `json:"approved_tutors"`
	OpenRequests        int `json:"open_requests"`
	AcceptedConnections int `json:"accepted_connections"`
}
