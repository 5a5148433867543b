package matching

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
)

// browseLimit caps public request listings.
const browseLimit = 50

var (
	// errors
	ErrRequestNotFound      = errors.New("tutoring request not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrNotRequestOwner      = errors.New("not allowed to modify this request")
	ErrRequestNotOpen       = errors.New("this request is no longer accepting applications")
	ErrDuplicateApplication = errors.New("you have already applied to this request")
	ErrRequestMatched       = errors.New("a matched request cannot be modified")
	ErrProfileNotApproved   = errors.New("your account must be approved before performing this action")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, req TutoringRequest) (TutoringRequest, error)
		GetRequest(ctx context.Context, id string) (TutoringRequest, error)
		// QueryRequests returns newest first, with application counts, capped at limit.
		QueryRequests(ctx context.Context, filter QueryFilter, limit int) ([]TutoringRequest, error)
		// QueryStudentRequests returns the student's requests with their applications.
		QueryStudentRequests(ctx context.Context, studentID string) ([]TutoringRequest, error)
		UpdateRequestStatus(ctx context.Context, id string, status RequestStatus) (TutoringRequest, error)
		// DeleteRequest removes the request and its applications in one
		// transaction; connection rows survive with their request reference cleared.
		DeleteRequest(ctx context.Context, id string) error

		// CreateApplication fails with ErrDuplicateApplication when the
		// (request, tutor) pair already has one.
		CreateApplication(ctx context.Context, app TutorApplication) (TutorApplication, error)
		GetApplication(ctx context.Context, id string) (TutorApplication, error)
		QueryTutorApplications(ctx context.Context, tutorID string) ([]TutorApplication, error)
		UpdateApplicationStatus(ctx context.Context, id string, status ApplicationStatus) (TutorApplication, error)
		// AcceptApplication runs the four-write match transaction: accept app,
		// reject pending siblings, mark the request MATCHED with the selected
		// tutor, insert conn. It re-checks that the request is still OPEN inside
		// the transaction and fails with ErrRequestNotOpen otherwise.
		AcceptApplication(ctx context.Context, app TutorApplication, conn ConnectionRequest) (TutorApplication, ConnectionRequest, error)

		QueryConnections(ctx context.Context, filter ConnectionFilter) ([]ConnectionRequest, error)
		CountRequests(ctx context.Context, status RequestStatus) (int, error)
		CountConnections(ctx context.Context, status ConnectionStatus) (int, error)
	}

	Service interface {
		CreateRequest(ctx context.Context, usr user.User, nr NewRequest) (TutoringRequest, error)
		BrowseRequests(ctx context.Context, filter QueryFilter) ([]TutoringRequest, error)
		StudentRequests(ctx context.Context, usr user.User) ([]TutoringRequest, error)
		UpdateRequestStatus(ctx context.Context, usr user.User, requestID string, status RequestStatus) (TutoringRequest, error)
		DeleteRequest(ctx context.Context, usr user.User, requestID string) error
		Apply(ctx context.Context, usr user.User, na NewApplication) (TutorApplication, error)
		TutorApplications(ctx context.Context, usr user.User) ([]TutorApplication, error)
		Accept(ctx context.Context, usr user.User, applicationID string) (MatchResult, error)
		Reject(ctx context.Context, usr user.User, applicationID string) (TutorApplication, error)
		Connections(ctx context.Context, usr user.User) ([]ConnectionRequest, error)
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		repo    Repository
		profSvc profile.Service
		usrSvc  user.Service
		mailSvc core.EmailService
		sync    bool // send emails synchronously (tests)
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, profSvc profile.Service, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{repo: repo, profSvc: profSvc, usrSvc: usrSvc, mailSvc: mailSvc}
}

func (svc *service) notify(fn func()) {
	if svc.sync {
		fn()
		return
	}
	go fn()
}

func (svc *service) CreateRequest(ctx context.Context, usr user.User, nr NewRequest) (TutoringRequest, error) {
	prof, err := svc.profSvc.StudentByUserID(ctx, usr.ID)
	if err != nil {
		return TutoringRequest{}, err
	}
	if !prof.Approved() {
		return TutoringRequest{}, ErrProfileNotApproved
	}

	now := time.Now().UTC()
	req := TutoringRequest{
		StudentID:   prof.ID,
		Title:       nr.Title,
		Subjects:    nr.Subjects,
		GradeLevel:  prof.GradeLevel,
		Description: nr.Description,
		Status:      RequestOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateRequest(ctx, req)
}

func (svc *service) BrowseRequests(ctx context.Context, filter QueryFilter) ([]TutoringRequest, error) {
	if filter.Status == "" {
		filter.Status = RequestOpen
	}
	return svc.repo.QueryRequests(ctx, filter, browseLimit)
}

func (svc *service) StudentRequests(ctx context.Context, usr user.User) ([]TutoringRequest, error) {
	prof, err := svc.profSvc.StudentByUserID(ctx, usr.ID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryStudentRequests(ctx, prof.ID)
}

func (svc *service) UpdateRequestStatus(ctx context.Context, usr user.User, requestID string, status RequestStatus) (TutoringRequest, error) {
	req, err := svc.ownedRequest(ctx, usr, requestID)
	if err != nil {
		return TutoringRequest{}, err
	}
	if req.Status == RequestMatched {
		return TutoringRequest{}, ErrRequestMatched
	}
	return svc.repo.UpdateRequestStatus(ctx, req.ID, status)
}

func (svc *service) DeleteRequest(ctx context.Context, usr user.User, requestID string) error {
	req, err := svc.ownedRequest(ctx, usr, requestID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteRequest(ctx, req.ID)
}

func (svc *service) Apply(ctx context.Context, usr user.User, na NewApplication) (TutorApplication, error) {
	prof, err := svc.profSvc.TutorByUserID(ctx, usr.ID)
	if err != nil {
		return TutorApplication{}, err
	}
	if !prof.Approved() {
		return TutorApplication{}, ErrProfileNotApproved
	}

	req, err := svc.repo.GetRequest(ctx, na.RequestID)
	if err != nil {
		return TutorApplication{}, err
	}
	if req.Status != RequestOpen {
		return TutorApplication{}, ErrRequestNotOpen
	}

	now := time.Now().UTC()
	app := TutorApplication{
		RequestID:        req.ID,
		TutorID:          prof.ID,
		Message:          na.Message,
		ProposedSchedule: na.ProposedSchedule,
		Status:           ApplicationPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	app, err = svc.repo.CreateApplication(ctx, app)
	if err != nil {
		return TutorApplication{}, err
	}

	svc.notify(func() { svc.notifyStudent(req, prof) })
	return app, nil
}

func (svc *service) TutorApplications(ctx context.Context, usr user.User) ([]TutorApplication, error) {
	prof, err := svc.profSvc.TutorByUserID(ctx, usr.ID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryTutorApplications(ctx, prof.ID)
}

// Accept runs the match transaction: the target application becomes ACCEPTED,
// its pending siblings REJECTED, the request MATCHED with the selected tutor,
// and a connection is created. Tutor contact details are disclosed to the
// student here and only here.
func (svc *service) Accept(ctx context.Context, usr user.User, applicationID string) (MatchResult, error) {
	app, req, err := svc.ownedApplication(ctx, usr, applicationID)
	if err != nil {
		return MatchResult{}, err
	}
	if req.Status != RequestOpen {
		return MatchResult{}, ErrRequestNotOpen
	}

	conn := ConnectionRequest{
		StudentID:         req.StudentID,
		TutorID:           app.TutorID,
		TutoringRequestID: req.ID,
		Status:            ConnectionAccepted,
		Notes:             "Matched through tutoring request: " + req.Title,
	}
	app, conn, err = svc.repo.AcceptApplication(ctx, app, conn)
	if err != nil {
		return MatchResult{}, err
	}

	tutor, err := svc.profSvc.TutorByID(ctx, app.TutorID)
	if err != nil {
		return MatchResult{}, errors.Wrap(err, "finding accepted tutor")
	}

	svc.notify(func() { svc.notifyTutor(tutor, req) })
	return MatchResult{
		Application: app,
		Connection:  conn,
		TutorContact: TutorContact{
			ID:             tutor.ID,
			FullName:       tutor.FullName,
			Phone:          tutor.Phone,
			EducationLevel: tutor.EducationLevel,
		},
	}, nil
}

func (svc *service) Reject(ctx context.Context, usr user.User, applicationID string) (TutorApplication, error) {
	app, _, err := svc.ownedApplication(ctx, usr, applicationID)
	if err != nil {
		return TutorApplication{}, err
	}
	return svc.repo.UpdateApplicationStatus(ctx, app.ID, ApplicationRejected)
}

func (svc *service) Connections(ctx context.Context, usr user.User) ([]ConnectionRequest, error) {
	switch {
	case usr.IsStudent():
		prof, err := svc.profSvc.StudentByUserID(ctx, usr.ID)
		if err != nil {
			return nil, err
		}
		return svc.repo.QueryConnections(ctx, ConnectionFilter{StudentID: prof.ID})
	case usr.IsTutor():
		prof, err := svc.profSvc.TutorByUserID(ctx, usr.ID)
		if err != nil {
			return nil, err
		}
		return svc.repo.QueryConnections(ctx, ConnectionFilter{TutorID: prof.ID})
	}
	return nil, profile.ErrRoleMismatch
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	students, err := svc.profSvc.CountApproved(ctx, profile.TypeStudent)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting students")
	}
	tutors, err := svc.profSvc.CountApproved(ctx, profile.TypeTutor)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting tutors")
	}
	open, err := svc.repo.CountRequests(ctx, RequestOpen)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting requests")
	}
	conns, err := svc.repo.CountConnections(ctx, ConnectionAccepted)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting connections")
	}
	return Stats{
		ApprovedStudents:    students,
		ApprovedTutors:      tutors,
		OpenRequests:        open,
		AcceptedConnections: conns,
	}, nil
}

// ownedRequest loads a request and verifies that usr's student profile owns it.
func (svc *service) ownedRequest(ctx context.Context, usr user.User, requestID string) (TutoringRequest, error) {
	prof, err := svc.profSvc.StudentByUserID(ctx, usr.ID)
	if err != nil {
		return TutoringRequest{}, err
	}
	req, err := svc.repo.GetRequest(ctx, requestID)
	if err != nil {
		return TutoringRequest{}, err
	}
	if req.StudentID != prof.ID {
		return TutoringRequest{}, ErrNotRequestOwner
	}
	return req, nil
}

// ownedApplication loads an application and verifies that usr's student
// profile owns its parent request.
func (svc *service) ownedApplication(ctx context.Context, usr user.User, applicationID string) (TutorApplication, TutoringRequest, error) {
	prof, err := svc.profSvc.StudentByUserID(ctx, usr.ID)
	if err != nil {
		return TutorApplication{}, TutoringRequest{}, err
	}
	app, err := svc.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return TutorApplication{}, TutoringRequest{}, err
	}
	req, err := svc.repo.GetRequest(ctx, app.RequestID)
	if err != nil {
		return TutorApplication{}, TutoringRequest{}, err
	}
	if req.StudentID != prof.ID {
		return TutorApplication{}, TutoringRequest{}, ErrNotRequestOwner
	}
	return app, req, nil
}

// notifyStudent emails the request owner about a new application. Best effort.
func (svc *service) notifyStudent(req TutoringRequest, tutor profile.TutorProfile) {
	ctx := context.Background()
	prof, err := svc.profSvc.StudentByID(ctx, req.StudentID)
	if err != nil {
		return
	}
	usr, err := svc.usrSvc.GetByID(ctx, prof.UserID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "New application on your tutoring request",
			TemplateName: "new-application",
			TemplateData: struct {
				Name         string
				RequestTitle string
				TutorName    string
			}{usr.Name, req.Title, tutor.FullName},
		},
	)
}

// notifyTutor emails the accepted tutor about the match. Best effort.
func (svc *service) notifyTutor(tutor profile.TutorProfile, req TutoringRequest) {
	usr, err := svc.usrSvc.GetByID(context.Background(), tutor.UserID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Your application has been accepted",
			TemplateName: "application-accepted",
			TemplateData: struct {
				Name         string
				RequestTitle string
			}{usr.Name, req.Title},
		},
	)
}
