package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/go-ohms-auth/internal/api/admin"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/auth"
	"github.com/FACorreiaa/go-ohms-auth/internal/api/records"
	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

var (
	_ auth.AuthRepo         = (*memStore)(nil)
	_ admin.AdminRepo       = (*memStore)(nil)
	_ records.IntegrityRepo = (*memStore)(nil)
)

type memRecord struct {
	id         uuid.UUID
	employeeID uuid.UUID
	hazardID   uuid.UUID
	recordedBy *uuid.UUID
}

// memStore keeps users, sessions and clinical rows in memory with the same
// contracts as the Postgres repositories.
type memStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*types.User
	sessions      map[string]*types.Session
	employees     map[uuid.UUID]bool
	hazards       map[uuid.UUID]bool
	exposures     []memRecord
	healthRecords []memRecord
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[uuid.UUID]*types.User),
		sessions:  make(map[string]*types.Session),
		employees: make(map[uuid.UUID]bool),
		hazards:   make(map[uuid.UUID]bool),
	}
}

func (m *memStore) find(match func(*types.User) bool) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, types.ErrNotFound
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*types.User, error) {
	return m.find(func(u *types.User) bool { return u.Username == username })
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	return m.find(func(u *types.User) bool { return u.EmailAddress() == email })
}

func (m *memStore) GetUserByID(_ context.Context, userID uuid.UUID) (*types.User, error) {
	return m.find(func(u *types.User) bool { return u.ID == userID })
}

func (m *memStore) CheckUserExists(_ context.Context, username, email string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var usernameTaken, emailTaken bool
	for _, u := range m.users {
		usernameTaken = usernameTaken || u.Username == username
		emailTaken = emailTaken || (email != "" && u.EmailAddress() == email)
	}
	var taken []string
	if usernameTaken {
		taken = append(taken, "username")
	}
	if emailTaken {
		taken = append(taken, "email")
	}
	return taken, nil
}

func (m *memStore) CreateUser(ctx context.Context, user *types.User) error {
	if taken, _ := m.CheckUserExists(ctx, user.Username, user.EmailAddress()); len(taken) > 0 {
		return &types.ConflictError{Fields: taken}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) SetResetToken(_ context.Context, userID uuid.UUID, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return types.ErrNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpires = &expires
	return nil
}

func (m *memStore) GetUserByResetToken(_ context.Context, token string, now time.Time) (*types.User, error) {
	return m.find(func(u *types.User) bool {
		return u.ResetToken != nil && *u.ResetToken == token && u.ResetTokenExpires.After(now)
	})
}

func (m *memStore) ConsumeResetToken(_ context.Context, userID uuid.UUID, token, newHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.ResetToken == nil || *u.ResetToken != token || !u.ResetTokenExpires.After(now) {
		return types.ErrNotFound
	}
	u.PasswordHash = newHash
	u.ResetToken = nil
	u.ResetTokenExpires = nil
	for _, s := range m.sessions {
		if s.UserID == userID && s.InvalidatedAt == nil {
			at := now
			s.InvalidatedAt = &at
		}
	}
	return nil
}

func (m *memStore) CreateSession(_ context.Context, sess *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memStore) GetSessionWithUser(_ context.Context, sessionID string) (*types.Session, *types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, types.ErrNotFound
	}
	u, ok := m.users[s.UserID]
	if !ok {
		return nil, nil, types.ErrNotFound
	}
	sc, uc := *s, *u
	return &sc, &uc, nil
}

func (m *memStore) InvalidateSession(_ context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.InvalidatedAt != nil {
		return types.ErrNotFound
	}
	s.InvalidatedAt = &at
	return nil
}

func (m *memStore) UpdateLastLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *memStore) ListUsers(_ context.Context) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]types.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, nil
}

func (m *memStore) UpdateUser(_ context.Context, userID uuid.UUID, params types.UpdateUserParams) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, types.ErrNotFound
	}
	u.Role = params.Role
	u.IsActive = params.IsActive
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *memStore) DeleteUser(_ context.Context, userID uuid.UUID) (*types.DeletionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, types.ErrNotFound
	}
	report := &types.DeletionReport{Entity: "user", ID: userID}
	report.ExposuresDetached = detach(m.exposures, userID)
	report.HealthRecordsDetached = detach(m.healthRecords, userID)
	delete(m.users, userID)
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return report, nil
}

func (m *memStore) DeleteEmployee(_ context.Context, employeeID uuid.UUID) (*types.DeletionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.employees[employeeID] {
		return nil, types.ErrNotFound
	}
	report := &types.DeletionReport{Entity: "employee", ID: employeeID}
	m.exposures, report.ExposuresDeleted = without(m.exposures, func(r memRecord) bool { return r.employeeID == employeeID })
	m.healthRecords, report.HealthRecordsDeleted = without(m.healthRecords, func(r memRecord) bool { return r.employeeID == employeeID })
	delete(m.employees, employeeID)
	return report, nil
}

func (m *memStore) DeleteHazard(_ context.Context, hazardID uuid.UUID) (*types.DeletionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hazards[hazardID] {
		return nil, types.ErrNotFound
	}
	report := &types.DeletionReport{Entity: "hazard", ID: hazardID}
	m.exposures, report.ExposuresDeleted = without(m.exposures, func(r memRecord) bool { return r.hazardID == hazardID })
	delete(m.hazards, hazardID)
	return report, nil
}

func detach(rows []memRecord, userID uuid.UUID) int64 {
	var n int64
	for i := range rows {
		if rows[i].recordedBy != nil && *rows[i].recordedBy == userID {
			rows[i].recordedBy = nil
			n++
		}
	}
	return n
}

func without(rows []memRecord, drop func(memRecord) bool) ([]memRecord, int64) {
	kept := rows[:0]
	var n int64
	for _, r := range rows {
		if drop(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	return kept, n
}

// seedClinical adds an employee and a hazard with one exposure and one health
// record, both recorded by recordedBy.
func (m *memStore) seedClinical(recordedBy uuid.UUID) (employeeID, hazardID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	employeeID, hazardID = uuid.New(), uuid.New()
	m.employees[employeeID] = true
	m.hazards[hazardID] = true
	by := recordedBy
	m.exposures = append(m.exposures, memRecord{id: uuid.New(), employeeID: employeeID, hazardID: hazardID, recordedBy: &by})
	m.healthRecords = append(m.healthRecords, memRecord{id: uuid.New(), employeeID: employeeID, recordedBy: &by})
	return employeeID, hazardID
}

func (m *memStore) setRole(username string, role types.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u.Role = role
		}
	}
}

func (m *memStore) expireResetTokens(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetToken != nil {
			u.ResetTokenExpires = &at
		}
	}
}
