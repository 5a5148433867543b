package matching_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/freetutor/freetutor/core/matching"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
	emailsvc "github.com/freetutor/freetutor/services/email"
	dummydb "github.com/freetutor/freetutor/storage/database/dummy"
)

type testEnv struct {
	usrRepo  user.Repository
	usrSvc   user.Service
	profSvc  profile.Service
	matchSvc matching.Service
	mailSvc  *emailsvc.MockService
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy DB: %v", err)
	}
	mailSvc := emailsvc.NewMockService()
	usrRepo := dummydb.NewUserRepository(db)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc)
	profSvc := profile.NewServiceMock(dummydb.NewProfileRepository(db), usrSvc, mailSvc)
	matchSvc := matching.NewServiceMock(dummydb.NewMatchingRepository(db), profSvc, usrSvc, mailSvc)
	return &testEnv{
		usrRepo:  usrRepo,
		usrSvc:   usrSvc,
		profSvc:  profSvc,
		matchSvc: matchSvc,
		mailSvc:  mailSvc,
	}
}

func (env *testEnv) createStudent(t *testing.T, name, email string, approve bool) user.User {
	t.Helper()
	ctx := context.Background()

	usr := user.User{Name: name, Email: email, Role: user.RoleStudent}
	usr.SetActive(true)
	usr, err := env.usrRepo.CreateUser(ctx, usr)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	prof, err := env.profSvc.CreateStudent(ctx, usr, profile.NewStudentProfile{
		FullName:       name,
		Phone:          "+85291234567",
		GradeLevel:     "中學 S4",
		SubjectsNeeded: []string{"Mathematics"},
	})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	if approve {
		env.verify(t, prof.ID, profile.TypeStudent)
	}
	return usr
}

func (env *testEnv) createTutor(t *testing.T, name, email string, approve bool) user.User {
	t.Helper()
	ctx := context.Background()

	usr := user.User{Name: name, Email: email, Role: user.RoleTutor}
	usr.SetActive(true)
	usr, err := env.usrRepo.CreateUser(ctx, usr)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	prof, err := env.profSvc.CreateTutor(ctx, usr, profile.NewTutorProfile{
		FullName:       name,
		Phone:          "+85298765432",
		EducationLevel: "學士學位",
		SubjectsTaught: []string{"Mathematics", "Physics"},
		Bio:            "Patient and experienced.",
	})
	if err != nil {
		t.Fatalf("CreateTutor() error = %v", err)
	}
	if approve {
		env.verify(t, prof.ID, profile.TypeTutor)
	}
	return usr
}

func (env *testEnv) verify(t *testing.T, profID string, typ profile.Type) {
	t.Helper()
	err := env.profSvc.Verify(context.Background(), profile.VerifyProfile{
		ProfileID:   profID,
		ProfileType: typ,
		Action:      "approve",
	})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func (env *testEnv) createRequest(t *testing.T, student user.User, title string) matching.TutoringRequest {
	t.Helper()
	req, err := env.matchSvc.CreateRequest(context.Background(), student, matching.NewRequest{
		Title:       title,
		Subjects:    []string{"Mathematics"},
		Description: "Need help with calculus.",
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	return req
}

func (env *testEnv) apply(t *testing.T, tutor user.User, requestID string) matching.TutorApplication {
	t.Helper()
	app, err := env.matchSvc.Apply(context.Background(), tutor, matching.NewApplication{
		RequestID: requestID,
		Message:   "I can help with this.",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return app
}

func Test_service_CreateRequest(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	pending := env.createStudent(t, "Ka Yan", "yan@test.hk", false)

	req := env.createRequest(t, student, "Calculus help")
	if req.Status != matching.RequestOpen {
		t.Errorf("expected status %q, got %q", matching.RequestOpen, req.Status)
	}
	if req.GradeLevel != "中學 S4" {
		t.Errorf("expected the student's grade level on the request, got %q", req.GradeLevel)
	}

	if _, err := env.matchSvc.CreateRequest(ctx, pending, matching.NewRequest{
		Title:       "DSE prep",
		Subjects:    []string{"English"},
		Description: "Oral practice.",
	}); err != matching.ErrProfileNotApproved {
		t.Errorf("expected ErrProfileNotApproved for a pending profile, got %v", err)
	}
}

func Test_service_BrowseRequests(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	for i := 0; i < 3; i++ {
		env.createRequest(t, student, "Request "+strconv.Itoa(i))
	}
	closedReq := env.createRequest(t, student, "Closed request")
	if _, err := env.matchSvc.UpdateRequestStatus(ctx, student, closedReq.ID, matching.RequestClosed); err != nil {
		t.Fatalf("UpdateRequestStatus() error = %v", err)
	}

	// defaults to OPEN
	reqs, err := env.matchSvc.BrowseRequests(ctx, matching.QueryFilter{})
	if err != nil {
		t.Fatalf("BrowseRequests() error = %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 open requests, got %d", len(reqs))
	}
	for _, req := range reqs {
		if req.Status != matching.RequestOpen {
			t.Errorf("expected only OPEN requests, got %q", req.Status)
		}
	}

	// subject filter
	reqs, err = env.matchSvc.BrowseRequests(ctx, matching.QueryFilter{Subject: "Biology"})
	if err != nil {
		t.Fatalf("BrowseRequests() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("expected no requests for an unknown subject, got %d", len(reqs))
	}
}

func Test_service_Apply(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	tutor := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	pendingTutor := env.createTutor(t, "Mr. Wong", "wong@test.hk", false)
	req := env.createRequest(t, student, "Calculus help")

	env.mailSvc.Reset()
	app := env.apply(t, tutor, req.ID)
	if app.Status != matching.ApplicationPending {
		t.Errorf("expected status %q, got %q", matching.ApplicationPending, app.Status)
	}

	// the request owner is notified
	sent := env.mailSvc.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	if sent[0].To[0].Address != "ming@test.hk" {
		t.Errorf("expected the student to be notified, got %q", sent[0].To[0].Address)
	}

	// duplicate application
	if _, err := env.matchSvc.Apply(ctx, tutor, matching.NewApplication{
		RequestID: req.ID,
		Message:   "Second try.",
	}); err != matching.ErrDuplicateApplication {
		t.Errorf("expected ErrDuplicateApplication, got %v", err)
	}

	// unapproved tutor
	if _, err := env.matchSvc.Apply(ctx, pendingTutor, matching.NewApplication{
		RequestID: req.ID,
		Message:   "Pick me.",
	}); err != matching.ErrProfileNotApproved {
		t.Errorf("expected ErrProfileNotApproved, got %v", err)
	}

	// closed request
	closedReq := env.createRequest(t, student, "Closed request")
	if _, err := env.matchSvc.UpdateRequestStatus(ctx, student, closedReq.ID, matching.RequestClosed); err != nil {
		t.Fatalf("UpdateRequestStatus() error = %v", err)
	}
	if _, err := env.matchSvc.Apply(ctx, tutor, matching.NewApplication{
		RequestID: closedReq.ID,
		Message:   "Too late?",
	}); err != matching.ErrRequestNotOpen {
		t.Errorf("expected ErrRequestNotOpen, got %v", err)
	}
}

func Test_service_Accept(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	tutorA := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	tutorB := env.createTutor(t, "Mr. Wong", "wong@test.hk", true)
	tutorC := env.createTutor(t, "Ms. Lee", "lee@test.hk", true)
	req := env.createRequest(t, student, "Calculus help")

	env.apply(t, tutorA, req.ID)
	appB := env.apply(t, tutorB, req.ID)
	env.apply(t, tutorC, req.ID)

	env.mailSvc.Reset()
	match, err := env.matchSvc.Accept(ctx, student, appB.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if match.Application.Status != matching.ApplicationAccepted {
		t.Errorf("expected status %q, got %q", matching.ApplicationAccepted, match.Application.Status)
	}
	if match.Connection.Status != matching.ConnectionAccepted {
		t.Errorf("expected connection status %q, got %q", matching.ConnectionAccepted, match.Connection.Status)
	}
	if want := "Matched through tutoring request: Calculus help"; match.Connection.Notes != want {
		t.Errorf("expected notes %q, got %q", want, match.Connection.Notes)
	}
	if match.TutorContact.FullName != "Mr. Wong" || match.TutorContact.Phone == "" {
		t.Errorf("expected the accepted tutor's contact, got %+v", match.TutorContact)
	}

	// the accepted tutor is notified
	sent := env.mailSvc.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	if sent[0].To[0].Address != "wong@test.hk" {
		t.Errorf("expected the tutor to be notified, got %q", sent[0].To[0].Address)
	}

	// the request is matched with the selected tutor
	reqs, err := env.matchSvc.StudentRequests(ctx, student)
	if err != nil {
		t.Fatalf("StudentRequests() error = %v", err)
	}
	var matched matching.TutoringRequest
	for _, r := range reqs {
		if r.ID == req.ID {
			matched = r
		}
	}
	if matched.Status != matching.RequestMatched {
		t.Errorf("expected status %q, got %q", matching.RequestMatched, matched.Status)
	}
	if matched.SelectedTutorID != appB.TutorID {
		t.Errorf("expected selected tutor %q, got %q", appB.TutorID, matched.SelectedTutorID)
	}

	// exactly one accepted application, pending siblings rejected
	var accepted, rejected int
	for _, app := range matched.Applications {
		switch app.Status {
		case matching.ApplicationAccepted:
			accepted++
		case matching.ApplicationRejected:
			rejected++
		}
	}
	if accepted != 1 || rejected != 2 {
		t.Errorf("expected 1 accepted and 2 rejected applications, got %d and %d", accepted, rejected)
	}

	// the matched request accepts no further decisions
	lateApp := matched.Applications[0]
	if _, err := env.matchSvc.Accept(ctx, student, lateApp.ID); err != matching.ErrRequestNotOpen {
		t.Errorf("expected ErrRequestNotOpen on a matched request, got %v", err)
	}

	// both parties see the connection
	for _, usr := range []user.User{student, tutorB} {
		conns, err := env.matchSvc.Connections(ctx, usr)
		if err != nil {
			t.Fatalf("Connections() error = %v", err)
		}
		if len(conns) != 1 {
			t.Errorf("expected 1 connection for %s, got %d", usr.Name, len(conns))
		}
	}
	conns, err := env.matchSvc.Connections(ctx, tutorA)
	if err != nil {
		t.Fatalf("Connections() error = %v", err)
	}
	if len(conns) != 0 {
		t.Errorf("expected no connections for a rejected tutor, got %d", len(conns))
	}
}

func Test_service_Reject(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	otherStudent := env.createStudent(t, "Ka Yan", "yan@test.hk", true)
	tutor := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	req := env.createRequest(t, student, "Calculus help")
	app := env.apply(t, tutor, req.ID)

	// only the request owner can decide
	if _, err := env.matchSvc.Reject(ctx, otherStudent, app.ID); err != matching.ErrNotRequestOwner {
		t.Errorf("expected ErrNotRequestOwner, got %v", err)
	}

	rejected, err := env.matchSvc.Reject(ctx, student, app.ID)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != matching.ApplicationRejected {
		t.Errorf("expected status %q, got %q", matching.ApplicationRejected, rejected.Status)
	}

	// the request stays open
	reqs, err := env.matchSvc.BrowseRequests(ctx, matching.QueryFilter{})
	if err != nil {
		t.Fatalf("BrowseRequests() error = %v", err)
	}
	if len(reqs) != 1 || reqs[0].Status != matching.RequestOpen {
		t.Errorf("expected the request to stay OPEN, got %+v", reqs)
	}
}

func Test_service_DeleteRequest(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	tutor := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	req := env.createRequest(t, student, "Calculus help")
	app := env.apply(t, tutor, req.ID)
	if _, err := env.matchSvc.Accept(ctx, student, app.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	if err := env.matchSvc.DeleteRequest(ctx, student, req.ID); err != nil {
		t.Fatalf("DeleteRequest() error = %v", err)
	}

	reqs, err := env.matchSvc.StudentRequests(ctx, student)
	if err != nil {
		t.Fatalf("StudentRequests() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("expected no requests after deletion, got %d", len(reqs))
	}

	// the tutor's applications are gone too
	apps, err := env.matchSvc.TutorApplications(ctx, tutor)
	if err != nil {
		t.Fatalf("TutorApplications() error = %v", err)
	}
	if len(apps) != 0 {
		t.Errorf("expected no applications after deletion, got %d", len(apps))
	}

	// the connection survives without its request reference
	conns, err := env.matchSvc.Connections(ctx, student)
	if err != nil {
		t.Fatalf("Connections() error = %v", err)
	}
	if len(conns) != 1 {
		t.Fatalf("expected the connection to survive, got %d", len(conns))
	}
	if conns[0].TutoringRequestID != "" {
		t.Errorf("expected the request reference to be cleared, got %q", conns[0].TutoringRequestID)
	}
}

func Test_service_Stats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	env.createStudent(t, "Ka Yan", "yan@test.hk", false)
	tutor := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	req := env.createRequest(t, student, "Calculus help")
	env.createRequest(t, student, "Physics help")
	app := env.apply(t, tutor, req.ID)
	if _, err := env.matchSvc.Accept(ctx, student, app.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	stats, err := env.matchSvc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := matching.Stats{ApprovedStudents: 1, ApprovedTutors: 1, OpenRequests: 1, AcceptedConnections: 1}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}
