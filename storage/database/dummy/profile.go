package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/freetutor/freetutor/core/profile"
)

type profileRepository struct {
	db *profileTable
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db.profile}
}

func (repo *profileRepository) CreateStudentProfile(_ context.Context, p profile.StudentProfile) (profile.StudentProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.students {
		if existing.UserID == p.UserID {
			return profile.StudentProfile{}, profile.ErrProfileExists
		}
	}
	p.ID = uuid.New().String()
	repo.db.students[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) GetStudentProfile(_ context.Context, filter profile.GetFilter) (profile.StudentProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.students[filter.ID]; ok {
			return *p, nil
		}
		return profile.StudentProfile{}, profile.ErrNotFound
	}
	if filter.UserID != "" {
		for _, p := range repo.db.students {
			if p.UserID == filter.UserID {
				return *p, nil
			}
		}
	}
	return profile.StudentProfile{}, profile.ErrNotFound
}

func (repo *profileRepository) UpdateStudentProfile(_ context.Context, p profile.StudentProfile) (profile.StudentProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[p.ID]; !ok {
		return profile.StudentProfile{}, profile.ErrNotFound
	}
	repo.db.students[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) CreateTutorProfile(_ context.Context, p profile.TutorProfile) (profile.TutorProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.tutors {
		if existing.UserID == p.UserID {
			return profile.TutorProfile{}, profile.ErrProfileExists
		}
	}
	p.ID = uuid.New().String()
	repo.db.tutors[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) GetTutorProfile(_ context.Context, filter profile.GetFilter) (profile.TutorProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.tutors[filter.ID]; ok {
			return *p, nil
		}
		return profile.TutorProfile{}, profile.ErrNotFound
	}
	if filter.UserID != "" {
		for _, p := range repo.db.tutors {
			if p.UserID == filter.UserID {
				return *p, nil
			}
		}
	}
	return profile.TutorProfile{}, profile.ErrNotFound
}

func (repo *profileRepository) UpdateTutorProfile(_ context.Context, p profile.TutorProfile) (profile.TutorProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tutors[p.ID]; !ok {
		return profile.TutorProfile{}, profile.ErrNotFound
	}
	repo.db.tutors[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) QueryPendingProfiles(_ context.Context) (profile.PendingVerifications, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pending := profile.PendingVerifications{
		Students: []profile.StudentProfile{},
		Tutors:   []profile.TutorProfile{},
	}
	for _, p := range repo.db.students {
		if p.VerificationStatus == profile.VerificationPending {
			pending.Students = append(pending.Students, *p)
		}
	}
	for _, p := range repo.db.tutors {
		if p.VerificationStatus == profile.VerificationPending {
			pending.Tutors = append(pending.Tutors, *p)
		}
	}
	sort.Slice(pending.Students, func(i, j int) bool {
		return pending.Students[i].CreatedAt.Before(pending.Students[j].CreatedAt)
	})
	sort.Slice(pending.Tutors, func(i, j int) bool {
		return pending.Tutors[i].CreatedAt.Before(pending.Tutors[j].CreatedAt)
	})
	return pending, nil
}

func (repo *profileRepository) CountApprovedProfiles(_ context.Context, typ profile.Type) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	if typ == profile.TypeStudent {
		for _, p := range repo.db.students {
			if p.Approved() {
				count++
			}
		}
		return count, nil
	}
	for _, p := range repo.db.tutors {
		if p.Approved() {
			count++
		}
	}
	return count, nil
}
