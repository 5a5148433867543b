package tests

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	echoapi "github.com/freetutor/freetutor/apps/api/echo"
	"github.com/freetutor/freetutor/core/profile"
)

func Test_profileApi_me(t *testing.T) {
	env := setup(t)

	student, studentProf := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	tutor, tutorProf := env.createTutor(t, "Mr. Chan", "chan@test.hk", false)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "student", token: getToken(t, student), wantCode: http.StatusOK, wantData: marchallObj(t, studentProf)},
		{name: "tutor", token: getToken(t, tutor), wantCode: http.StatusOK, wantData: marchallObj(t, tutorProf)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/profiles/me", tt.token)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_profileApi_updateMe(t *testing.T) {
	env := setup(t)
	student, _ := env.createStudent(t, "Siu Ming", "ming@test.hk", true)

	body := marchallObj(t, map[string]interface{}{
		"phone":           "+85290000000",
		"subjects_needed": []string{"Mathematics", "English"},
	})
	req, rec := newAuthRequest(http.MethodPut, "/v1/profiles/me", getToken(t, student), body)
	env.serve(req, rec)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var prof profile.StudentProfile
	unmarshalBody(t, rec, &prof)
	if prof.Phone != "+85290000000" {
		t.Errorf("phone = %q; want %q", prof.Phone, "+85290000000")
	}
	if len(prof.SubjectsNeeded) != 2 {
		t.Errorf("subjects = %v; want 2 entries", prof.SubjectsNeeded)
	}
	// untouched fields survive
	if prof.FullName != "Siu Ming" {
		t.Errorf("full name = %q; want %q", prof.FullName, "Siu Ming")
	}

	// invalid grade level
	body = marchallObj(t, map[string]string{"grade_level": "lol"})
	req, rec = newAuthRequest(http.MethodPut, "/v1/profiles/me", getToken(t, student), body)
	env.serve(req, rec)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %v; want %v; body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func newUploadRequest(t *testing.T, token, filename, contentType string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="documents"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart(): %v", err)
	}
	if _, err = part.Write(content); err != nil {
		t.Fatalf("part.Write(): %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("multipart.Close(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	return req, rec
}

func Test_profileApi_documents(t *testing.T) {
	env := setup(t)
	student, _ := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	token := getToken(t, student)

	t.Run("upload", func(t *testing.T) {
		req, rec := newUploadRequest(t, token, "id-card.png", "image/png", []byte("png-bytes"))
		env.serve(req, rec)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var resp echoapi.DocumentsResponse
		unmarshalBody(t, rec, &resp)
		if len(resp.Documents) != 1 {
			t.Fatalf("expected 1 document key, got %d", len(resp.Documents))
		}
		key := resp.Documents[0]
		if !strings.HasPrefix(key, "student/"+student.ID+"/") {
			t.Errorf("key = %q; want student/%s/ prefix", key, student.ID)
		}
		if _, ok := env.docStorage.Object(key); !ok {
			t.Error("expected the object in storage")
		}

		prof, err := env.profSvc.StudentByUserID(context.Background(), student.ID)
		if err != nil {
			t.Fatalf("StudentByUserID(): %v", err)
		}
		if len(prof.VerificationDocuments) != 1 || prof.VerificationDocuments[0] != key {
			t.Errorf("expected the key on the profile, got %v", prof.VerificationDocuments)
		}
	})

	t.Run("unsupported content type", func(t *testing.T) {
		req, rec := newUploadRequest(t, token, "malware.exe", "application/octet-stream", []byte("nope"))
		env.serve(req, rec)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v; body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}

func Test_profileApi_signedURL(t *testing.T) {
	env := setup(t)
	student, _ := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	other, _ := env.createStudent(t, "Ka Yan", "yan@test.hk", true)
	admin := env.createUser(t, "Admin", "admin@test.hk", "admin", true)
	token := getToken(t, student)

	req, rec := newUploadRequest(t, token, "id-card.png", "image/png", []byte("png-bytes"))
	env.serve(req, rec)
	var uploaded echoapi.DocumentsResponse
	unmarshalBody(t, rec, &uploaded)
	key := uploaded.Documents[0]

	t.Run("owner", func(t *testing.T) {
		body := marchallObj(t, echoapi.SignedURLRequest{Key: key})
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/signed-url", token, body)
		env.serve(req, rec)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var resp echoapi.SignedURLResponse
		unmarshalBody(t, rec, &resp)
		if resp.URL == "" {
			t.Error("expected a signed URL")
		}
	})

	t.Run("not the owner", func(t *testing.T) {
		body := marchallObj(t, echoapi.SignedURLRequest{Key: key})
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/signed-url", getToken(t, other), body)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("admin", func(t *testing.T) {
		body := marchallObj(t, echoapi.SignedURLRequest{Key: key})
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/signed-url", getToken(t, admin), body)
		env.serve(req, rec)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})
}

func Test_profileApi_admin(t *testing.T) {
	env := setup(t)

	student, studentProf := env.createStudent(t, "Siu Ming", "ming@test.hk", false)
	_, tutorProf := env.createTutor(t, "Mr. Chan", "chan@test.hk", false)
	admin := env.createUser(t, "Admin", "admin@test.hk", "admin", true)
	adminToken := getToken(t, admin)

	t.Run("admin required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/verifications", getToken(t, student))
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("pending verifications", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/verifications", adminToken)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, profile.PendingVerifications{
				Students: []profile.StudentProfile{studentProf},
				Tutors:   []profile.TutorProfile{tutorProf},
			}),
		}, rec)
	})

	t.Run("approve", func(t *testing.T) {
		env.mailSvc.Reset()
		body := marchallObj(t, profile.VerifyProfile{
			ProfileID:   studentProf.ID,
			ProfileType: profile.TypeStudent,
			Action:      "approve",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/verify", adminToken, body)
		env.serve(req, rec)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		prof, err := env.profSvc.StudentByID(context.Background(), studentProf.ID)
		if err != nil {
			t.Fatalf("StudentByID(): %v", err)
		}
		if !prof.Approved() {
			t.Errorf("expected the profile to be approved, got %q", prof.VerificationStatus)
		}

		sent := env.mailSvc.Sent()
		if len(sent) != 1 || sent[0].Subject != "Your FreeTutor profile has been approved" {
			t.Errorf("expected an approval email, got %+v", sent)
		}
	})

	t.Run("reject with notes", func(t *testing.T) {
		env.mailSvc.Reset()
		body := marchallObj(t, profile.VerifyProfile{
			ProfileID:   tutorProf.ID,
			ProfileType: profile.TypeTutor,
			Action:      "reject",
			Notes:       "Document unreadable",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/verify", adminToken, body)
		env.serve(req, rec)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		prof, err := env.profSvc.TutorByID(context.Background(), tutorProf.ID)
		if err != nil {
			t.Fatalf("TutorByID(): %v", err)
		}
		if prof.VerificationStatus != profile.VerificationRejected {
			t.Errorf("expected status %q, got %q", profile.VerificationRejected, prof.VerificationStatus)
		}
		if prof.VerificationNotes != "Document unreadable" {
			t.Errorf("expected the notes to be recorded, got %q", prof.VerificationNotes)
		}

		sent := env.mailSvc.Sent()
		if len(sent) != 1 || sent[0].Subject != "Your FreeTutor profile needs attention" {
			t.Errorf("expected a rejection email, got %+v", sent)
		}
	})
}
