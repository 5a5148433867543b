package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/profile"
)

const (
	studentProfileTable = "student_profile"
	tutorProfileTable   = "tutor_profile"
)

var (
	studentProfileColumns = []string{
		"id", "user_id", "full_name", "phone", "grade_level", "subjects_needed",
		"special_needs_description", "verification_documents", "verification_status",
		"verification_notes", "created_at", "updated_at",
	}
	tutorProfileColumns = []string{
		"id", "user_id", "full_name", "phone", "education_level", "subjects_taught",
		"bio", "exam_results", "availability", "photo_key", "verification_documents",
		"verification_status", "verification_notes", "created_at", "updated_at",
	}
)

// examResults stores []profile.ExamResult as JSONB.
type examResults []profile.ExamResult

func (e examResults) Value() (driver.Value, error) {
	if e == nil {
		e = examResults{}
	}
	return json.Marshal(e)
}

func (e *examResults) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("unexpected exam_results type %T", src)
	}
	return json.Unmarshal(b, e)
}

// availability stores profile.WeeklyAvailability as JSONB.
type availability profile.WeeklyAvailability

func (a availability) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *availability) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("unexpected availability type %T", src)
	}
	return json.Unmarshal(b, a)
}

type studentProfileRow struct {
	ID                      string         `db:"id"`
	UserID                  string         `db:"user_id"`
	FullName                string         `db:"full_name"`
	Phone                   string         `db:"phone"`
	GradeLevel              string         `db:"grade_level"`
	SubjectsNeeded          pq.StringArray `db:"subjects_needed"`
	SpecialNeedsDescription string         `db:"special_needs_description"`
	VerificationDocuments   pq.StringArray `db:"verification_documents"`
	VerificationStatus      string         `db:"verification_status"`
	VerificationNotes       null.String    `db:"verification_notes"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
}

func (r studentProfileRow) unpack() profile.StudentProfile {
	return profile.StudentProfile{
		ID:                      r.ID,
		UserID:                  r.UserID,
		FullName:                r.FullName,
		Phone:                   r.Phone,
		GradeLevel:              r.GradeLevel,
		SubjectsNeeded:          r.SubjectsNeeded,
		SpecialNeedsDescription: r.SpecialNeedsDescription,
		VerificationDocuments:   r.VerificationDocuments,
		VerificationStatus:      profile.VerificationStatus(r.VerificationStatus),
		VerificationNotes:       r.VerificationNotes.String,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

type tutorProfileRow struct {
	ID                    string         `db:"id"`
	UserID                string         `db:"user_id"`
	FullName              string         `db:"full_name"`
	Phone                 string         `db:"phone"`
	EducationLevel        string         `db:"education_level"`
	SubjectsTaught        pq.StringArray `db:"subjects_taught"`
	Bio                   string         `db:"bio"`
	ExamResults           examResults    `db:"exam_results"`
	Availability          availability   `db:"availability"`
	PhotoKey              null.String    `db:"photo_key"`
	VerificationDocuments pq.StringArray `db:"verification_documents"`
	VerificationStatus    string         `db:"verification_status"`
	VerificationNotes     null.String    `db:"verification_notes"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r tutorProfileRow) unpack() profile.TutorProfile {
	return profile.TutorProfile{
		ID:                    r.ID,
		UserID:                r.UserID,
		FullName:              r.FullName,
		Phone:                 r.Phone,
		EducationLevel:        r.EducationLevel,
		SubjectsTaught:        r.SubjectsTaught,
		Bio:                   r.Bio,
		ExamResults:           r.ExamResults,
		Availability:          profile.WeeklyAvailability(r.Availability),
		PhotoKey:              r.PhotoKey.String,
		VerificationDocuments: r.VerificationDocuments,
		VerificationStatus:    profile.VerificationStatus(r.VerificationStatus),
		VerificationNotes:     r.VerificationNotes.String,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

type profileRepository struct {
	db core.DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db core.DB) *profileRepository {
	return &profileRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to profile.ErrNotFound
func (repo profileRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return profile.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo profileRepository) trapUniqueErr(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return profile.ErrProfileExists
	}
	return errors.Wrap(err, msg)
}

func (repo profileRepository) CreateStudentProfile(ctx context.Context, p profile.StudentProfile) (profile.StudentProfile, error) {
	p.ID = uuid.New().String()
	q, args, err := psql.Insert(studentProfileTable).
		Columns(studentProfileColumns...).
		Values(
			p.ID, p.UserID, p.FullName, p.Phone, p.GradeLevel, pq.StringArray(p.SubjectsNeeded),
			p.SpecialNeedsDescription, pq.StringArray(p.VerificationDocuments), string(p.VerificationStatus),
			null.NewString(p.VerificationNotes, p.VerificationNotes != ""), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return profile.StudentProfile{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return profile.StudentProfile{}, repo.trapUniqueErr(err, "inserting student profile")
	}
	return p, nil
}

func (repo profileRepository) GetStudentProfile(ctx context.Context, filter profile.GetFilter) (profile.StudentProfile, error) {
	qb, err := repo.getQuery(studentProfileTable, studentProfileColumns, filter)
	if err != nil {
		return profile.StudentProfile{}, err
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return profile.StudentProfile{}, errors.Wrap(err, "building query")
	}

	var row studentProfileRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return profile.StudentProfile{}, repo.trapNoRowsErr(err, "finding student profile")
	}
	return row.unpack(), nil
}

func (repo profileRepository) UpdateStudentProfile(ctx context.Context, p profile.StudentProfile) (profile.StudentProfile, error) {
	q, args, err := psql.Update(studentProfileTable).
		Set("full_name", p.FullName).
		Set("phone", p.Phone).
		Set("grade_level", p.GradeLevel).
		Set("subjects_needed", pq.StringArray(p.SubjectsNeeded)).
		Set("special_needs_description", p.SpecialNeedsDescription).
		Set("verification_documents", pq.StringArray(p.VerificationDocuments)).
		Set("verification_status", string(p.VerificationStatus)).
		Set("verification_notes", null.NewString(p.VerificationNotes, p.VerificationNotes != "")).
		Set("updated_at", p.UpdatedAt.UTC()).
		Where(sq.Eq{"id": p.ID}).
		Suffix("RETURNING " + joinColumns(studentProfileColumns)).
		ToSql()
	if err != nil {
		return profile.StudentProfile{}, errors.Wrap(err, "building query")
	}

	var row studentProfileRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return profile.StudentProfile{}, repo.trapNoRowsErr(err, "updating student profile")
	}
	return row.unpack(), nil
}

func (repo profileRepository) CreateTutorProfile(ctx context.Context, p profile.TutorProfile) (profile.TutorProfile, error) {
	p.ID = uuid.New().String()
	q, args, err := psql.Insert(tutorProfileTable).
		Columns(tutorProfileColumns...).
		Values(
			p.ID, p.UserID, p.FullName, p.Phone, p.EducationLevel, pq.StringArray(p.SubjectsTaught),
			p.Bio, examResults(p.ExamResults), availability(p.Availability),
			null.NewString(p.PhotoKey, p.PhotoKey != ""), pq.StringArray(p.VerificationDocuments),
			string(p.VerificationStatus), null.NewString(p.VerificationNotes, p.VerificationNotes != ""),
			p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return profile.TutorProfile{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return profile.TutorProfile{}, repo.trapUniqueErr(err, "inserting tutor profile")
	}
	return p, nil
}

func (repo profileRepository) GetTutorProfile(ctx context.Context, filter profile.GetFilter) (profile.TutorProfile, error) {
	qb, err := repo.getQuery(tutorProfileTable, tutorProfileColumns, filter)
	if err != nil {
		return profile.TutorProfile{}, err
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return profile.TutorProfile{}, errors.Wrap(err, "building query")
	}

	var row tutorProfileRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return profile.TutorProfile{}, repo.trapNoRowsErr(err, "finding tutor profile")
	}
	return row.unpack(), nil
}

func (repo profileRepository) UpdateTutorProfile(ctx context.Context, p profile.TutorProfile) (profile.TutorProfile, error) {
	q, args, err := psql.Update(tutorProfileTable).
		Set("full_name", p.FullName).
		Set("phone", p.Phone).
		Set("education_level", p.EducationLevel).
		Set("subjects_taught", pq.StringArray(p.SubjectsTaught)).
		Set("bio", p.Bio).
		Set("exam_results", examResults(p.ExamResults)).
		Set("availability", availability(p.Availability)).
		Set("photo_key", null.NewString(p.PhotoKey, p.PhotoKey != "")).
		Set("verification_documents", pq.StringArray(p.VerificationDocuments)).
		Set("verification_status", string(p.VerificationStatus)).
		Set("verification_notes", null.NewString(p.VerificationNotes, p.VerificationNotes != "")).
		Set("updated_at", p.UpdatedAt.UTC()).
		Where(sq.Eq{"id": p.ID}).
		Suffix("RETURNING " + joinColumns(tutorProfileColumns)).
		ToSql()
	if err != nil {
		return profile.TutorProfile{}, errors.Wrap(err, "building query")
	}

	var row tutorProfileRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return profile.TutorProfile{}, repo.trapNoRowsErr(err, "updating tutor profile")
	}
	return row.unpack(), nil
}

func (repo profileRepository) QueryPendingProfiles(ctx context.Context) (profile.PendingVerifications, error) {
	pending := profile.PendingVerifications{
		Students: []profile.StudentProfile{},
		Tutors:   []profile.TutorProfile{},
	}

	q, args, err := psql.Select(studentProfileColumns...).From(studentProfileTable).
		Where(sq.Eq{"verification_status": string(profile.VerificationPending)}).
		OrderBy(core.DBOrdering{Field: "created_at", Ascending: true}.String()).
		ToSql()
	if err != nil {
		return pending, errors.Wrap(err, "building query")
	}
	var studentRows []studentProfileRow
	if err = repo.db.SelectContext(ctx, &studentRows, q, args...); err != nil {
		return pending, errors.Wrap(err, "querying pending students")
	}
	for _, row := range studentRows {
		pending.Students = append(pending.Students, row.unpack())
	}

	q, args, err = psql.Select(tutorProfileColumns...).From(tutorProfileTable).
		Where(sq.Eq{"verification_status": string(profile.VerificationPending)}).
		OrderBy(core.DBOrdering{Field: "created_at", Ascending: true}.String()).
		ToSql()
	if err != nil {
		return pending, errors.Wrap(err, "building query")
	}
	var tutorRows []tutorProfileRow
	if err = repo.db.SelectContext(ctx, &tutorRows, q, args...); err != nil {
		return pending, errors.Wrap(err, "querying pending tutors")
	}
	for _, row := range tutorRows {
		pending.Tutors = append(pending.Tutors, row.unpack())
	}
	return pending, nil
}

func (repo profileRepository) CountApprovedProfiles(ctx context.Context, typ profile.Type) (int, error) {
	table := studentProfileTable
	if typ == profile.TypeTutor {
		table = tutorProfileTable
	}
	q, args, err := psql.Select("COUNT(*)").From(table).
		Where(sq.Eq{"verification_status": string(profile.VerificationApproved)}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}

	var count int
	if err = repo.db.GetContext(ctx, &count, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting profiles")
	}
	return count, nil
}

func (repo profileRepository) getQuery(table string, columns []string, filter profile.GetFilter) (sq.SelectBuilder, error) {
	qb := psql.Select(columns...).From(table)
	if filter.IsEmpty() {
		return qb, profile.ErrNotFound
	}
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return qb, profile.ErrNotFound
		}
		return qb.Where(sq.Eq{"id": filter.ID}), nil
	}
	return qb.Where(sq.Eq{"user_id": filter.UserID}), nil
}
