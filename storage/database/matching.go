package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/matching"
)

const (
	requestTable     = "tutoring_request"
	applicationTable = "tutor_application"
	connectionTable  = "connection_request"
)

var (
	requestColumns = []string{
		"id", "student_id", "title", "subjects", "grade_level", "description",
		"status", "selected_tutor_id", "created_at", "updated_at",
	}
	applicationColumns = []string{
		"id", "request_id", "tutor_id", "message", "proposed_schedule", "status",
		"created_at", "updated_at",
	}
	connectionColumns = []string{
		"id", "student_id", "tutor_id", "tutoring_request_id", "status", "notes",
		"created_at", "updated_at",
	}

	// applicationCountCol is selected alongside request columns on listings.
	applicationCountCol = "(SELECT COUNT(*) FROM " + applicationTable + " a WHERE a.request_id = " + requestTable + ".id) AS application_count"

	newestFirst = core.DBOrdering{Field: "created_at"}.String()
)

type requestRow struct {
	ID               string         `db:"id"`
	StudentID        string         `db:"student_id"`
	Title            string         `db:"title"`
	Subjects         pq.StringArray `db:"subjects"`
	GradeLevel       string         `db:"grade_level"`
	Description      string         `db:"description"`
	Status           string         `db:"status"`
	SelectedTutorID  null.String    `db:"selected_tutor_id"`
	ApplicationCount int            `db:"application_count"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r requestRow) unpack() matching.TutoringRequest {
	return matching.TutoringRequest{
		ID:               r.ID,
		StudentID:        r.StudentID,
		Title:            r.Title,
		Subjects:         r.Subjects,
		GradeLevel:       r.GradeLevel,
		Description:      r.Description,
		Status:           matching.RequestStatus(r.Status),
		SelectedTutorID:  r.SelectedTutorID.String,
		ApplicationCount: r.ApplicationCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type applicationRow struct {
	ID               string      `db:"id"`
	RequestID        string      `db:"request_id"`
	TutorID          string      `db:"tutor_id"`
	Message          string      `db:"message"`
	ProposedSchedule null.String `db:"proposed_schedule"`
	Status           string      `db:"status"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r applicationRow) unpack() matching.TutorApplication {
	return matching.TutorApplication{
		ID:               r.ID,
		RequestID:        r.RequestID,
		TutorID:          r.TutorID,
		Message:          r.Message,
		ProposedSchedule: r.ProposedSchedule.String,
		Status:           matching.ApplicationStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type connectionRow struct {
	ID                string      `db:"id"`
	StudentID         string      `db:"student_id"`
	TutorID           string      `db:"tutor_id"`
	TutoringRequestID null.String `db:"tutoring_request_id"`
	Status            string      `db:"status"`
	Notes             string      `db:"notes"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func (r connectionRow) unpack() matching.ConnectionRequest {
	return matching.ConnectionRequest{
		ID:                r.ID,
		StudentID:         r.StudentID,
		TutorID:           r.TutorID,
		TutoringRequestID: r.TutoringRequestID.String,
		Status:            matching.ConnectionStatus(r.Status),
		Notes:             r.Notes,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type matchingRepository struct {
	db core.DB
}

var _ matching.Repository = (*matchingRepository)(nil) // interface compliance check

func NewMatchingRepository(db core.DB) *matchingRepository {
	return &matchingRepository{db: db}
}

func (repo matchingRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo matchingRepository) CreateRequest(ctx context.Context, req matching.TutoringRequest) (matching.TutoringRequest, error) {
	req.ID = uuid.New().String()
	q, args, err := psql.Insert(requestTable).
		Columns(requestColumns...).
		Values(
			req.ID, req.StudentID, req.Title, pq.StringArray(req.Subjects), req.GradeLevel,
			req.Description, string(req.Status), null.NewString(req.SelectedTutorID, req.SelectedTutorID != ""),
			req.CreatedAt.UTC(), req.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return matching.TutoringRequest{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return matching.TutoringRequest{}, errors.Wrap(err, "inserting request")
	}
	return req, nil
}

func (repo matchingRepository) GetRequest(ctx context.Context, id string) (matching.TutoringRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return matching.TutoringRequest{}, matching.ErrRequestNotFound
	}
	q, args, err := psql.Select(append(requestColumns, applicationCountCol)...).
		From(requestTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return matching.TutoringRequest{}, errors.Wrap(err, "building query")
	}

	var row requestRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return matching.TutoringRequest{}, matching.ErrRequestNotFound
		}
		return matching.TutoringRequest{}, errors.Wrap(err, "finding request")
	}
	return row.unpack(), nil
}

func (repo matchingRepository) QueryRequests(ctx context.Context, filter matching.QueryFilter, limit int) ([]matching.TutoringRequest, error) {
	qb := psql.Select(append(requestColumns, applicationCountCol)...).
		From(requestTable).
		OrderBy(newestFirst).
		Limit(uint64(limit))
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Subject != "" {
		qb = qb.Where("? = ANY (subjects)", filter.Subject)
	}
	if filter.GradeLevel != "" {
		qb = qb.Where(sq.Eq{"grade_level": filter.GradeLevel})
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []requestRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	reqs := make([]matching.TutoringRequest, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, row.unpack())
	}
	return reqs, nil
}

func (repo matchingRepository) QueryStudentRequests(ctx context.Context, studentID string) ([]matching.TutoringRequest, error) {
	q, args, err := psql.Select(append(requestColumns, applicationCountCol)...).
		From(requestTable).
		Where(sq.Eq{"student_id": studentID}).
		OrderBy(newestFirst).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []requestRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	if len(rows) == 0 {
		return []matching.TutoringRequest{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	q, args, err = psql.Select(applicationColumns...).
		From(applicationTable).
		Where(sq.Eq{"request_id": ids}).
		OrderBy(newestFirst).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var appRows []applicationRow
	if err = repo.db.SelectContext(ctx, &appRows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}

	appsByRequest := make(map[string][]matching.TutorApplication, len(rows))
	for _, row := range appRows {
		appsByRequest[row.RequestID] = append(appsByRequest[row.RequestID], row.unpack())
	}
	reqs := make([]matching.TutoringRequest, 0, len(rows))
	for _, row := range rows {
		req := row.unpack()
		req.Applications = appsByRequest[req.ID]
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (repo matchingRepository) UpdateRequestStatus(ctx context.Context, id string, status matching.RequestStatus) (matching.TutoringRequest, error) {
	q, args, err := psql.Update(requestTable).
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(requestColumns)).
		ToSql()
	if err != nil {
		return matching.TutoringRequest{}, errors.Wrap(err, "building query")
	}

	var row requestRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return matching.TutoringRequest{}, matching.ErrRequestNotFound
		}
		return matching.TutoringRequest{}, errors.Wrap(err, "updating request")
	}
	return row.unpack(), nil
}

// DeleteRequest clears connection references, removes the request's
// applications and the request itself in one transaction.
func (repo matchingRepository) DeleteRequest(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		q, args, err := psql.Update(connectionTable).
			Set("tutoring_request_id", nil).
			Where(sq.Eq{"tutoring_request_id": id}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "clearing connection references")
		}

		q, args, err = psql.Delete(applicationTable).Where(sq.Eq{"request_id": id}).ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "deleting applications")
		}

		q, args, err = psql.Delete(requestTable).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "deleting request")
		}
		return nil
	})
}

func (repo matchingRepository) CreateApplication(ctx context.Context, app matching.TutorApplication) (matching.TutorApplication, error) {
	app.ID = uuid.New().String()
	q, args, err := psql.Insert(applicationTable).
		Columns(applicationColumns...).
		Values(
			app.ID, app.RequestID, app.TutorID, app.Message,
			null.NewString(app.ProposedSchedule, app.ProposedSchedule != ""),
			string(app.Status), app.CreatedAt.UTC(), app.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return matching.TutorApplication{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return matching.TutorApplication{}, matching.ErrDuplicateApplication
		}
		return matching.TutorApplication{}, errors.Wrap(err, "inserting application")
	}
	return app, nil
}

func (repo matchingRepository) GetApplication(ctx context.Context, id string) (matching.TutorApplication, error) {
	if _, err := uuid.Parse(id); err != nil {
		return matching.TutorApplication{}, matching.ErrApplicationNotFound
	}
	q, args, err := psql.Select(applicationColumns...).
		From(applicationTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return matching.TutorApplication{}, errors.Wrap(err, "building query")
	}

	var row applicationRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return matching.TutorApplication{}, matching.ErrApplicationNotFound
		}
		return matching.TutorApplication{}, errors.Wrap(err, "finding application")
	}
	return row.unpack(), nil
}

func (repo matchingRepository) QueryTutorApplications(ctx context.Context, tutorID string) ([]matching.TutorApplication, error) {
	q, args, err := psql.Select(applicationColumns...).
		From(applicationTable).
		Where(sq.Eq{"tutor_id": tutorID}).
		OrderBy(newestFirst).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []applicationRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	if len(rows) == 0 {
		return []matching.TutorApplication{}, nil
	}

	// attach each application's request
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RequestID)
	}
	q, args, err = psql.Select(append(requestColumns, applicationCountCol)...).
		From(requestTable).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var reqRows []requestRow
	if err = repo.db.SelectContext(ctx, &reqRows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	reqByID := make(map[string]matching.TutoringRequest, len(reqRows))
	for _, row := range reqRows {
		reqByID[row.ID] = row.unpack()
	}

	apps := make([]matching.TutorApplication, 0, len(rows))
	for _, row := range rows {
		app := row.unpack()
		if req, ok := reqByID[app.RequestID]; ok {
			app.Request = &req
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (repo matchingRepository) UpdateApplicationStatus(ctx context.Context, id string, status matching.ApplicationStatus) (matching.TutorApplication, error) {
	q, args, err := psql.Update(applicationTable).
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(applicationColumns)).
		ToSql()
	if err != nil {
		return matching.TutorApplication{}, errors.Wrap(err, "building query")
	}

	var row applicationRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return matching.TutorApplication{}, matching.ErrApplicationNotFound
		}
		return matching.TutorApplication{}, errors.Wrap(err, "updating application")
	}
	return row.unpack(), nil
}

// AcceptApplication performs the four-write match inside one transaction. The
// request row is locked and re-checked so a concurrent accept on the same
// request observes a non-OPEN status and fails cleanly.
func (repo matchingRepository) AcceptApplication(ctx context.Context, app matching.TutorApplication, conn matching.ConnectionRequest) (matching.TutorApplication, matching.ConnectionRequest, error) {
	now := time.Now().UTC()
	conn.ID = uuid.New().String()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		// lock the request and re-check its status
		var status string
		q, args, err := psql.Select("status").From(requestTable).
			Where(sq.Eq{"id": app.RequestID}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if err = tx.GetContext(ctx, &status, q, args...); err != nil {
			if errors.Cause(err) == sql.ErrNoRows {
				return matching.ErrRequestNotFound
			}
			return errors.Wrap(err, "locking request")
		}
		if matching.RequestStatus(status) != matching.RequestOpen {
			return matching.ErrRequestNotOpen
		}

		// 1. accept the target application
		q, args, err = psql.Update(applicationTable).
			Set("status", string(matching.ApplicationAccepted)).
			Set("updated_at", now).
			Where(sq.Eq{"id": app.ID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "accepting application")
		}

		// 2. reject its pending siblings
		q, args, err = psql.Update(applicationTable).
			Set("status", string(matching.ApplicationRejected)).
			Set("updated_at", now).
			Where(sq.Eq{"request_id": app.RequestID, "status": string(matching.ApplicationPending)}).
			Where(sq.NotEq{"id": app.ID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "rejecting sibling applications")
		}

		// 3. mark the request matched with the selected tutor
		q, args, err = psql.Update(requestTable).
			Set("status", string(matching.RequestMatched)).
			Set("selected_tutor_id", app.TutorID).
			Set("updated_at", now).
			Where(sq.Eq{"id": app.RequestID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "matching request")
		}

		// 4. record the connection
		q, args, err = psql.Insert(connectionTable).
			Columns(connectionColumns...).
			Values(
				conn.ID, conn.StudentID, conn.TutorID,
				null.NewString(conn.TutoringRequestID, conn.TutoringRequestID != ""),
				string(conn.Status), conn.Notes, conn.CreatedAt, conn.UpdatedAt,
			).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "inserting connection")
		}
		return nil
	})
	if err != nil {
		return matching.TutorApplication{}, matching.ConnectionRequest{}, err
	}

	app.Status = matching.ApplicationAccepted
	app.UpdatedAt = now
	return app, conn, nil
}

func (repo matchingRepository) QueryConnections(ctx context.Context, filter matching.ConnectionFilter) ([]matching.ConnectionRequest, error) {
	qb := psql.Select(connectionColumns...).From(connectionTable).OrderBy(newestFirst)
	if filter.StudentID != "" {
		qb = qb.Where(sq.Eq{"student_id": filter.StudentID})
	}
	if filter.TutorID != "" {
		qb = qb.Where(sq.Eq{"tutor_id": filter.TutorID})
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []connectionRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying connections")
	}
	conns := make([]matching.ConnectionRequest, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, row.unpack())
	}
	return conns, nil
}

func (repo matchingRepository) CountRequests(ctx context.Context, status matching.RequestStatus) (int, error) {
	return repo.count(ctx, requestTable, string(status))
}

func (repo matchingRepository) CountConnections(ctx context.Context, status matching.ConnectionStatus) (int, error) {
	return repo.count(ctx, connectionTable, string(status))
}

func (repo matchingRepository) count(ctx context.Context, table, status string) (int, error) {
	q, args, err := psql.Select("COUNT(*)").From(table).Where(sq.Eq{"status": status}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var count int
	if err = repo.db.GetContext(ctx, &count, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	return count, nil
}
