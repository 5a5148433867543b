package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/freetutor/freetutor/core/matching"
)

func Test_matchingApi_requests(t *testing.T) {
	env := setup(t)

	student, _ := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	pending, _ := env.createStudent(t, "Ka Yan", "yan@test.hk", false)
	tutor, _ := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	studentToken := getToken(t, student)
	tutorToken := getToken(t, tutor)

	newReqBody := marchallObj(t, matching.NewRequest{
		Title:       "Calculus help",
		Subjects:    []string{"Mathematics"},
		Description: "Need help with differentiation.",
	})

	t.Run("create", func(t *testing.T) {
		tests := []httpTest{
			{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{name: "students only", token: tutorToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
			{
				name: "unapproved profile", token: getToken(t, pending), wantCode: http.StatusForbidden,
				wantData: marchallObj(t, httpErr{Error: "your account must be approved before performing this action"}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodPost, "/v1/requests", tt.token, newReqBody)
				env.serve(req, rec)
				checkCodeAndData(t, tt, rec)
			})
		}

		req, rec := newAuthRequest(http.MethodPost, "/v1/requests", studentToken, newReqBody)
		env.serve(req, rec)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var created matching.TutoringRequest
		unmarshalBody(t, rec, &created)
		if created.Status != matching.RequestOpen {
			t.Errorf("status = %q; want %q", created.Status, matching.RequestOpen)
		}
		if created.GradeLevel != "中學 S4" {
			t.Errorf("grade level = %q; want the student's", created.GradeLevel)
		}
	})

	t.Run("browse", func(t *testing.T) {
		// tutors only
		req, rec := newAuthRequest(http.MethodGet, "/v1/requests", studentToken)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/v1/requests", tutorToken)
		env.serve(req, rec)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var reqs []matching.TutoringRequest
		unmarshalBody(t, rec, &reqs)
		if len(reqs) != 1 {
			t.Fatalf("expected 1 open request, got %d", len(reqs))
		}

		// subject filter
		req, rec = newAuthRequest(http.MethodGet, "/v1/requests?subject=Biology", tutorToken)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...)}, rec)
	})

	t.Run("mine", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/requests/mine", studentToken)
		env.serve(req, rec)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var reqs []matching.TutoringRequest
		unmarshalBody(t, rec, &reqs)
		if len(reqs) != 1 {
			t.Errorf("expected 1 request, got %d", len(reqs))
		}
	})

	t.Run("close and delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/requests/mine", studentToken)
		env.serve(req, rec)
		var reqs []matching.TutoringRequest
		unmarshalBody(t, rec, &reqs)
		id := reqs[0].ID

		body := marchallObj(t, matching.UpdateRequest{Status: matching.RequestClosed})
		req, rec = newAuthRequest(http.MethodPatch, "/v1/requests/"+id, studentToken, body)
		env.serve(req, rec)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated matching.TutoringRequest
		unmarshalBody(t, rec, &updated)
		if updated.Status != matching.RequestClosed {
			t.Errorf("status = %q; want %q", updated.Status, matching.RequestClosed)
		}

		// owner only
		otherStudent, _ := env.createStudent(t, "Tai Man", "man@test.hk", true)
		req, rec = newAuthRequest(http.MethodDelete, "/v1/requests/"+id, getToken(t, otherStudent))
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "not allowed to modify this request"}),
		}, rec)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/requests/"+id, studentToken)
		env.serve(req, rec)
		if rec.Code != http.StatusNoContent {
			t.Errorf("code = %v; want %v; body = %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
	})
}

func Test_matchingApi_matchFlow(t *testing.T) {
	env := setup(t)

	student, _ := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	tutorA, _ := env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	tutorB, _ := env.createTutor(t, "Mr. Wong", "wong@test.hk", true)
	studentToken := getToken(t, student)

	// student posts a request
	body := marchallObj(t, matching.NewRequest{
		Title:       "Calculus help",
		Subjects:    []string{"Mathematics"},
		Description: "Need help with differentiation.",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/requests", studentToken, body)
	env.serve(req, rec)
	var posted matching.TutoringRequest
	unmarshalBody(t, rec, &posted)

	// both tutors apply
	applyBody := marchallObj(t, matching.NewApplication{RequestID: posted.ID, Message: "I can help."})
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications", getToken(t, tutorA), applyBody)
	env.serve(req, rec)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var appA matching.TutorApplication
	unmarshalBody(t, rec, &appA)

	req, rec = newAuthRequest(http.MethodPost, "/v1/applications", getToken(t, tutorB), applyBody)
	env.serve(req, rec)
	var appB matching.TutorApplication
	unmarshalBody(t, rec, &appB)

	// double application is rejected
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications", getToken(t, tutorA), applyBody)
	env.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Error: "you have already applied to this request"}),
	}, rec)

	// tutors see their applications with the request attached
	req, rec = newAuthRequest(http.MethodGet, "/v1/applications/mine", getToken(t, tutorA))
	env.serve(req, rec)
	var apps []matching.TutorApplication
	unmarshalBody(t, rec, &apps)
	if len(apps) != 1 || apps[0].Request == nil || apps[0].Request.Title != "Calculus help" {
		t.Errorf("expected the application with its request, got %+v", apps)
	}

	// the student accepts tutor A
	decision := marchallObj(t, matching.ApplicationDecision{Action: "accept"})
	req, rec = newAuthRequest(http.MethodPatch, "/v1/applications/"+appA.ID, studentToken, decision)
	env.serve(req, rec)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var match matching.MatchResult
	unmarshalBody(t, rec, &match)
	if match.Application.Status != matching.ApplicationAccepted {
		t.Errorf("application status = %q; want %q", match.Application.Status, matching.ApplicationAccepted)
	}
	if match.TutorContact.FullName != "Mr. Chan" || match.TutorContact.Phone == "" {
		t.Errorf("expected the accepted tutor's contact, got %+v", match.TutorContact)
	}

	// no further decisions on a matched request
	req, rec = newAuthRequest(http.MethodPatch, "/v1/applications/"+appB.ID, studentToken, decision)
	env.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Error: "this request is no longer accepting applications"}),
	}, rec)

	// both parties see the connection
	for _, tok := range []string{studentToken, getToken(t, tutorA)} {
		req, rec = newAuthRequest(http.MethodGet, "/v1/connections", tok)
		env.serve(req, rec)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var conns []matching.ConnectionRequest
		unmarshalBody(t, rec, &conns)
		if len(conns) != 1 {
			t.Fatalf("expected 1 connection, got %d", len(conns))
		}
		if conns[0].Notes != "Matched through tutoring request: Calculus help" {
			t.Errorf("notes = %q", conns[0].Notes)
		}
	}
}

func Test_matchingApi_stats(t *testing.T) {
	env := setup(t)

	student, _ := env.createStudent(t, "Siu Ming", "ming@test.hk", true)
	env.createTutor(t, "Mr. Chan", "chan@test.hk", true)
	if _, err := env.matchSvc.CreateRequest(context.Background(), student, matching.NewRequest{
		Title:       "Calculus help",
		Subjects:    []string{"Mathematics"},
		Description: "Need help.",
	}); err != nil {
		t.Fatalf("CreateRequest(): %v", err)
	}

	// public endpoint
	req, rec := newRequest(http.MethodGet, "/v1/stats")
	env.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, matching.Stats{ApprovedStudents: 1, ApprovedTutors: 1, OpenRequests: 1}),
	}, rec)
}
