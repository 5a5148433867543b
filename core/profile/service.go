package profile

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("profile not found")
	ErrProfileExists = errors.New("a profile already exists for this user")
	ErrRoleMismatch  = errors.New("profile type does not match user role")
)

type (
	Repository interface {
		CreateStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error)
		GetStudentProfile(ctx context.Context, filter GetFilter) (StudentProfile, error)
		UpdateStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error)
		CreateTutorProfile(ctx context.Context, p TutorProfile) (TutorProfile, error)
		GetTutorProfile(ctx context.Context, filter GetFilter) (TutorProfile, error)
		UpdateTutorProfile(ctx context.Context, p TutorProfile) (TutorProfile, error)
		QueryPendingProfiles(ctx context.Context) (PendingVerifications, error)
		CountApprovedProfiles(ctx context.Context, typ Type) (int, error)
	}

	Service interface {
		CreateStudent(ctx context.Context, usr user.User, np NewStudentProfile) (StudentProfile, error)
		CreateTutor(ctx context.Context, usr user.User, np NewTutorProfile) (TutorProfile, error)
		StudentByUserID(ctx context.Context, userID string) (StudentProfile, error)
		StudentByID(ctx context.Context, id string) (StudentProfile, error)
		TutorByUserID(ctx context.Context, userID string) (TutorProfile, error)
		TutorByID(ctx context.Context, id string) (TutorProfile, error)
		UpdateStudent(ctx context.Context, usr user.User, up UpdateStudentProfile) (StudentProfile, error)
		UpdateTutor(ctx context.Context, usr user.User, up UpdateTutorProfile) (TutorProfile, error)
		AttachDocuments(ctx context.Context, usr user.User, keys ...string) ([]string, error)
		PendingVerifications(ctx context.Context) (PendingVerifications, error)
		Verify(ctx context.Context, v VerifyProfile) error
		CountApproved(ctx context.Context, typ Type) (int, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
		sync    bool // send emails synchronously (tests)
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{repo: repo, usrSvc: usrSvc, mailSvc: mailSvc}
}

func (svc *service) notify(fn func()) {
	if svc.sync {
		fn()
		return
	}
	go fn()
}

func (svc *service) CreateStudent(ctx context.Context, usr user.User, np NewStudentProfile) (StudentProfile, error) {
	now := time.Now().UTC()
	prof := StudentProfile{
		UserID:                  usr.ID,
		FullName:                np.FullName,
		Phone:                   np.Phone,
		GradeLevel:              np.GradeLevel,
		SubjectsNeeded:          np.SubjectsNeeded,
		SpecialNeedsDescription: np.SpecialNeedsDescription,
		VerificationDocuments:   []string{},
		VerificationStatus:      VerificationPending,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	prof, err := svc.repo.CreateStudentProfile(ctx, prof)
	if err != nil {
		return StudentProfile{}, err
	}
	svc.notify(func() { svc.sendWelcomeMail(usr, "welcome-student") })
	return prof, nil
}

func (svc *service) CreateTutor(ctx context.Context, usr user.User, np NewTutorProfile) (TutorProfile, error) {
	now := time.Now().UTC()
	prof := TutorProfile{
		UserID:                usr.ID,
		FullName:              np.FullName,
		Phone:                 np.Phone,
		EducationLevel:        np.EducationLevel,
		SubjectsTaught:        np.SubjectsTaught,
		Bio:                   np.Bio,
		ExamResults:           np.ExamResults,
		Availability:          np.Availability,
		VerificationDocuments: []string{},
		VerificationStatus:    VerificationPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	prof, err := svc.repo.CreateTutorProfile(ctx, prof)
	if err != nil {
		return TutorProfile{}, err
	}
	svc.notify(func() { svc.sendWelcomeMail(usr, "welcome-tutor") })
	return prof, nil
}

func (svc *service) StudentByUserID(ctx context.Context, userID string) (StudentProfile, error) {
	return svc.repo.GetStudentProfile(ctx, GetFilter{UserID: userID})
}

func (svc *service) StudentByID(ctx context.Context, id string) (StudentProfile, error) {
	return svc.repo.GetStudentProfile(ctx, GetFilter{ID: id})
}

func (svc *service) TutorByUserID(ctx context.Context, userID string) (TutorProfile, error) {
	return svc.repo.GetTutorProfile(ctx, GetFilter{UserID: userID})
}

func (svc *service) TutorByID(ctx context.Context, id string) (TutorProfile, error) {
	return svc.repo.GetTutorProfile(ctx, GetFilter{ID: id})
}

func (svc *service) UpdateStudent(ctx context.Context, usr user.User, up UpdateStudentProfile) (StudentProfile, error) {
	prof, err := svc.StudentByUserID(ctx, usr.ID)
	if err != nil {
		return StudentProfile{}, err
	}
	if up.FullName != "" {
		prof.FullName = up.FullName
	}
	if up.Phone != "" {
		prof.Phone = up.Phone
	}
	if up.GradeLevel != "" {
		prof.GradeLevel = up.GradeLevel
	}
	if up.SubjectsNeeded != nil {
		prof.SubjectsNeeded = up.SubjectsNeeded
	}
	if up.SpecialNeedsDescription != nil {
		prof.SpecialNeedsDescription = *up.SpecialNeedsDescription
	}
	prof.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudentProfile(ctx, prof)
}

func (svc *service) UpdateTutor(ctx context.Context, usr user.User, up UpdateTutorProfile) (TutorProfile, error) {
	prof, err := svc.TutorByUserID(ctx, usr.ID)
	if err != nil {
		return TutorProfile{}, err
	}
	if up.FullName != "" {
		prof.FullName = up.FullName
	}
	if up.Phone != "" {
		prof.Phone = up.Phone
	}
	if up.EducationLevel != "" {
		prof.EducationLevel = up.EducationLevel
	}
	if up.SubjectsTaught != nil {
		prof.SubjectsTaught = up.SubjectsTaught
	}
	if up.Bio != nil {
		prof.Bio = *up.Bio
	}
	if up.ExamResults != nil {
		prof.ExamResults = up.ExamResults
	}
	if up.Availability != nil {
		prof.Availability = *up.Availability
	}
	if up.PhotoKey != nil {
		prof.PhotoKey = *up.PhotoKey
	}
	prof.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTutorProfile(ctx, prof)
}

// AttachDocuments replaces the verification document key list on the caller's
// profile and returns the new list.
func (svc *service) AttachDocuments(ctx context.Context, usr user.User, keys ...string) ([]string, error) {
	now := time.Now().UTC()
	switch {
	case usr.IsStudent():
		prof, err := svc.StudentByUserID(ctx, usr.ID)
		if err != nil {
			return nil, err
		}
		prof.VerificationDocuments = keys
		prof.UpdatedAt = now
		prof, err = svc.repo.UpdateStudentProfile(ctx, prof)
		if err != nil {
			return nil, err
		}
		return prof.VerificationDocuments, nil
	case usr.IsTutor():
		prof, err := svc.TutorByUserID(ctx, usr.ID)
		if err != nil {
			return nil, err
		}
		prof.VerificationDocuments = keys
		prof.UpdatedAt = now
		prof, err = svc.repo.UpdateTutorProfile(ctx, prof)
		if err != nil {
			return nil, err
		}
		return prof.VerificationDocuments, nil
	}
	return nil, ErrRoleMismatch
}

func (svc *service) PendingVerifications(ctx context.Context) (PendingVerifications, error) {
	return svc.repo.QueryPendingProfiles(ctx)
}

// Verify records an admin decision on a pending profile and notifies the owner.
func (svc *service) Verify(ctx context.Context, v VerifyProfile) error {
	var (
		userID   string
		fullName string
	)
	now := time.Now().UTC()

	switch v.ProfileType {
	case TypeStudent:
		prof, err := svc.StudentByID(ctx, v.ProfileID)
		if err != nil {
			return err
		}
		prof.VerificationStatus = v.Status()
		prof.VerificationNotes = v.Notes
		prof.UpdatedAt = now
		if _, err = svc.repo.UpdateStudentProfile(ctx, prof); err != nil {
			return errors.Wrap(err, "updating student profile")
		}
		userID, fullName = prof.UserID, prof.FullName
	case TypeTutor:
		prof, err := svc.TutorByID(ctx, v.ProfileID)
		if err != nil {
			return err
		}
		prof.VerificationStatus = v.Status()
		prof.VerificationNotes = v.Notes
		prof.UpdatedAt = now
		if _, err = svc.repo.UpdateTutorProfile(ctx, prof); err != nil {
			return errors.Wrap(err, "updating tutor profile")
		}
		userID, fullName = prof.UserID, prof.FullName
	default:
		return ErrRoleMismatch
	}

	usr, err := svc.usrSvc.GetByID(ctx, userID)
	if err == nil {
		svc.notify(func() { svc.sendDecisionMail(usr, fullName, v) })
	}
	return nil
}

func (svc *service) CountApproved(ctx context.Context, typ Type) (int, error) {
	return svc.repo.CountApprovedProfiles(ctx, typ)
}

func (svc *service) sendWelcomeMail(usr user.User, templateName string) {
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Welcome to FreeTutor",
			TemplateName: templateName,
			TemplateData: struct{ Name string }{usr.Name},
		},
	)
}

func (svc *service) sendDecisionMail(usr user.User, fullName string, v VerifyProfile) {
	templateName := "verification-approved"
	subject := "Your FreeTutor profile has been approved"
	if v.Status() == VerificationRejected {
		templateName = "verification-rejected"
		subject = "Your FreeTutor profile needs attention"
	}
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      subject,
			TemplateName: templateName,
			TemplateData: struct {
				Name  string
				Notes string
			}{fullName, v.Notes},
		},
	)
}
