package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freetutor/freetutor/core/matching"
)

type matchingRepository struct {
	db *matchingTable
}

var _ matching.Repository = (*matchingRepository)(nil) // interface compliance check

func NewMatchingRepository(db *DB) matching.Repository {
	return &matchingRepository{db: db.matching}
}

func (repo *matchingRepository) CreateRequest(_ context.Context, req matching.TutoringRequest) (matching.TutoringRequest, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	req.ID = uuid.New().String()
	repo.db.requests[req.ID] = &req
	return req, nil
}

func (repo *matchingRepository) GetRequest(_ context.Context, id string) (matching.TutoringRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	req, ok := repo.db.requests[id]
	if !ok {
		return matching.TutoringRequest{}, matching.ErrRequestNotFound
	}
	out := *req
	out.ApplicationCount = repo.countApplications(id)
	return out, nil
}

func (repo *matchingRepository) QueryRequests(_ context.Context, filter matching.QueryFilter, limit int) ([]matching.TutoringRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reqs := make([]matching.TutoringRequest, 0, len(repo.db.requests))
	for _, req := range repo.db.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.GradeLevel != "" && req.GradeLevel != filter.GradeLevel {
			continue
		}
		if filter.Subject != "" && !contains(req.Subjects, filter.Subject) {
			continue
		}
		out := *req
		out.ApplicationCount = repo.countApplications(req.ID)
		reqs = append(reqs, out)
	}
	sortNewestFirst(reqs)
	if len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (repo *matchingRepository) QueryStudentRequests(_ context.Context, studentID string) ([]matching.TutoringRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reqs := make([]matching.TutoringRequest, 0)
	for _, req := range repo.db.requests {
		if req.StudentID != studentID {
			continue
		}
		out := *req
		for _, app := range repo.db.applications {
			if app.RequestID == req.ID {
				out.Applications = append(out.Applications, *app)
			}
		}
		sort.Slice(out.Applications, func(i, j int) bool {
			return out.Applications[i].CreatedAt.After(out.Applications[j].CreatedAt)
		})
		out.ApplicationCount = len(out.Applications)
		reqs = append(reqs, out)
	}
	sortNewestFirst(reqs)
	return reqs, nil
}

func (repo *matchingRepository) UpdateRequestStatus(_ context.Context, id string, status matching.RequestStatus) (matching.TutoringRequest, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	req, ok := repo.db.requests[id]
	if !ok {
		return matching.TutoringRequest{}, matching.ErrRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return *req, nil
}

func (repo *matchingRepository) DeleteRequest(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, conn := range repo.db.connections {
		if conn.TutoringRequestID == id {
			conn.TutoringRequestID = ""
		}
	}
	for appID, app := range repo.db.applications {
		if app.RequestID == id {
			delete(repo.db.applications, appID)
		}
	}
	delete(repo.db.requests, id)
	return nil
}

func (repo *matchingRepository) CreateApplication(_ context.Context, app matching.TutorApplication) (matching.TutorApplication, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.applications {
		if existing.RequestID == app.RequestID && existing.TutorID == app.TutorID {
			return matching.TutorApplication{}, matching.ErrDuplicateApplication
		}
	}
	app.ID = uuid.New().String()
	repo.db.applications[app.ID] = &app
	return app, nil
}

func (repo *matchingRepository) GetApplication(_ context.Context, id string) (matching.TutorApplication, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	app, ok := repo.db.applications[id]
	if !ok {
		return matching.TutorApplication{}, matching.ErrApplicationNotFound
	}
	return *app, nil
}

func (repo *matchingRepository) QueryTutorApplications(_ context.Context, tutorID string) ([]matching.TutorApplication, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := make([]matching.TutorApplication, 0)
	for _, app := range repo.db.applications {
		if app.TutorID != tutorID {
			continue
		}
		out := *app
		if req, ok := repo.db.requests[app.RequestID]; ok {
			reqCopy := *req
			out.Request = &reqCopy
		}
		apps = append(apps, out)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.After(apps[j].CreatedAt) })
	return apps, nil
}

func (repo *matchingRepository) UpdateApplicationStatus(_ context.Context, id string, status matching.ApplicationStatus) (matching.TutorApplication, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	app, ok := repo.db.applications[id]
	if !ok {
		return matching.TutorApplication{}, matching.ErrApplicationNotFound
	}
	app.Status = status
	app.UpdatedAt = time.Now().UTC()
	return *app, nil
}

func (repo *matchingRepository) AcceptApplication(_ context.Context, app matching.TutorApplication, conn matching.ConnectionRequest) (matching.TutorApplication, matching.ConnectionRequest, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	req, ok := repo.db.requests[app.RequestID]
	if !ok {
		return matching.TutorApplication{}, matching.ConnectionRequest{}, matching.ErrRequestNotFound
	}
	if req.Status != matching.RequestOpen {
		return matching.TutorApplication{}, matching.ConnectionRequest{}, matching.ErrRequestNotOpen
	}
	target, ok := repo.db.applications[app.ID]
	if !ok {
		return matching.TutorApplication{}, matching.ConnectionRequest{}, matching.ErrApplicationNotFound
	}

	now := time.Now().UTC()

	target.Status = matching.ApplicationAccepted
	target.UpdatedAt = now

	for _, sibling := range repo.db.applications {
		if sibling.RequestID == req.ID && sibling.ID != target.ID && sibling.Status == matching.ApplicationPending {
			sibling.Status = matching.ApplicationRejected
			sibling.UpdatedAt = now
		}
	}

	req.Status = matching.RequestMatched
	req.SelectedTutorID = target.TutorID
	req.UpdatedAt = now

	conn.ID = uuid.New().String()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	repo.db.connections[conn.ID] = &conn

	return *target, conn, nil
}

func (repo *matchingRepository) QueryConnections(_ context.Context, filter matching.ConnectionFilter) ([]matching.ConnectionRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	conns := make([]matching.ConnectionRequest, 0)
	for _, conn := range repo.db.connections {
		if filter.StudentID != "" && conn.StudentID != filter.StudentID {
			continue
		}
		if filter.TutorID != "" && conn.TutorID != filter.TutorID {
			continue
		}
		conns = append(conns, *conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.After(conns[j].CreatedAt) })
	return conns, nil
}

func (repo *matchingRepository) CountRequests(_ context.Context, status matching.RequestStatus) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, req := range repo.db.requests {
		if req.Status == status {
			count++
		}
	}
	return count, nil
}

func (repo *matchingRepository) CountConnections(_ context.Context, status matching.ConnectionStatus) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, conn := range repo.db.connections {
		if conn.Status == status {
			count++
		}
	}
	return count, nil
}

// countApplications assumes the caller holds at least a read lock.
func (repo *matchingRepository) countApplications(requestID string) int {
	var count int
	for _, app := range repo.db.applications {
		if app.RequestID == requestID {
			count++
		}
	}
	return count
}

func contains(list []string, val string) bool {
	for _, entry := range list {
		if entry == val {
			return true
		}
	}
	return false
}

func sortNewestFirst(reqs []matching.TutoringRequest) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
}
