// Package dummydb provides in-memory repositories for tests and local dev.
package dummydb

import (
	"sync"

	"github.com/freetutor/freetutor/core/matching"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
)

type (
	DB struct {
		user     *userTable
		profile  *profileTable
		matching *matchingTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	profileTable struct {
		sync.RWMutex
		students map[string]*profile.StudentProfile
		tutors   map[string]*profile.TutorProfile
	}

	// matchingTable holds all three matching entities behind one lock so the
	// accept and delete transactions are atomic.
	matchingTable struct {
		sync.RWMutex
		requests     map[string]*matching.TutoringRequest
		applications map[string]*matching.TutorApplication
		connections  map[string]*matching.ConnectionRequest
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		profile: &profileTable{
			students: make(map[string]*profile.StudentProfile),
			tutors:   make(map[string]*profile.TutorProfile),
		},
		matching: &matchingTable{
			requests:     make(map[string]*matching.TutoringRequest),
			applications: make(map[string]*matching.TutorApplication),
			connections:  make(map[string]*matching.ConnectionRequest),
		},
	}
	return db, nil
}
