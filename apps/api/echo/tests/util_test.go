package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	echoapi "github.com/freetutor/freetutor/apps/api/echo"
	"github.com/freetutor/freetutor/core/matching"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
	emailsvc "github.com/freetutor/freetutor/services/email"
	logsvc "github.com/freetutor/freetutor/services/logger"
	storagesvc "github.com/freetutor/freetutor/services/storage"
	dummydb "github.com/freetutor/freetutor/storage/database/dummy"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type testEnv struct {
	app        echoapi.Server
	usrRepo    user.Repository
	usrSvc     user.Service
	profSvc    profile.Service
	matchSvc   matching.Service
	mailSvc    *emailsvc.MockService
	docStorage *storagesvc.DummyStorage
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy DB: %v", err)
	}

	mailSvc := emailsvc.NewMockService()
	docStorage := storagesvc.NewDummyStorage()
	usrRepo := dummydb.NewUserRepository(db)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc)
	profSvc := profile.NewServiceMock(dummydb.NewProfileRepository(db), usrSvc, mailSvc)
	matchSvc := matching.NewServiceMock(dummydb.NewMatchingRepository(db), profSvc, usrSvc, mailSvc)

	app := echoapi.NewServer(
		&echoapi.Options{
			DisableReqLogs: true,
			UserSvc:        usrSvc,
			ProfileSvc:     profSvc,
			MatchingSvc:    matchSvc,
			DocStorage:     docStorage,
			Logger:         logsvc.NewStdLogger(testLogger),
		},
	)
	return &testEnv{
		app:        app,
		usrRepo:    usrRepo,
		usrSvc:     usrSvc,
		profSvc:    profSvc,
		matchSvc:   matchSvc,
		mailSvc:    mailSvc,
		docStorage: docStorage,
	}
}

func (env *testEnv) createUser(t *testing.T, name, email string, role user.Role, active bool) user.User {
	t.Helper()

	usr := user.User{Name: name, Email: email, Role: role}
	usr.SetActive(active)
	if err := usr.SetPassword("Str0ng&Secret"); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	usr, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func (env *testEnv) createStudent(t *testing.T, name, email string, approve bool) (user.User, profile.StudentProfile) {
	t.Helper()
	ctx := context.Background()

	usr := env.createUser(t, name, email, user.RoleStudent, true)
	prof, err := env.profSvc.CreateStudent(ctx, usr, profile.NewStudentProfile{
		FullName:       name,
		Phone:          "+85291234567",
		GradeLevel:     "中學 S4",
		SubjectsNeeded: []string{"Mathematics"},
	})
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	if approve {
		env.approve(t, prof.ID, profile.TypeStudent)
		prof, err = env.profSvc.StudentByID(ctx, prof.ID)
		if err != nil {
			t.Fatalf("StudentByID(): %v", err)
		}
	}
	return usr, prof
}

func (env *testEnv) createTutor(t *testing.T, name, email string, approve bool) (user.User, profile.TutorProfile) {
	t.Helper()
	ctx := context.Background()

	usr := env.createUser(t, name, email, user.RoleTutor, true)
	prof, err := env.profSvc.CreateTutor(ctx, usr, profile.NewTutorProfile{
		FullName:       name,
		Phone:          "+85298765432",
		EducationLevel: "學士學位",
		SubjectsTaught: []string{"Mathematics"},
		Bio:            "Patient and experienced.",
	})
	if err != nil {
		t.Fatalf("CreateTutor(): %v", err)
	}
	if approve {
		env.approve(t, prof.ID, profile.TypeTutor)
		prof, err = env.profSvc.TutorByID(ctx, prof.ID)
		if err != nil {
			t.Fatalf("TutorByID(): %v", err)
		}
	}
	return usr, prof
}

func (env *testEnv) approve(t *testing.T, profID string, typ profile.Type) {
	t.Helper()
	err := env.profSvc.Verify(context.Background(), profile.VerifyProfile{
		ProfileID:   profID,
		ProfileType: typ,
		Action:      "approve",
	})
	if err != nil {
		t.Fatalf("Verify(): %v", err)
	}
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(usr)
	token, err := echoapi.GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshalBody(): %v; body = %s", err, rec.Body.String())
	}
}
