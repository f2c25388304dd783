package main

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bjaus/gateway"
)

// maxUsers caps the store so the sample can demonstrate an operation-local
// error (QuotaExceeded).
const maxUsers = 100

func registerHandlers(gw *gateway.Gateway, s *userStore) {
	gateway.Handle(gw, "health", handleHealth)
	gateway.Handle(gw, "listUsers", s.handleList)
	gateway.Handle(gw, "createUser", s.handleCreate)
	gateway.Handle(gw, "getUser", s.handleGet)
	gateway.Handle(gw, "deleteUser", s.handleDelete)
}

// In-memory store
// ---------------------------------------------------------------------------

type userStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	nextID int
}

func newUserStore() *userStore {
	now := time.Now()
	return &userStore{
		users: map[string]*User{
			"1": {ID: "1", Name: "Alice", Email: "alice@example.com", Role: "admin", CreatedAt: now},
			"2": {ID: "2", Name: "Bob", Email: "bob@example.com", Role: "member", CreatedAt: now},
		},
		nextID: 3,
	}
}

func (s *userStore) list(role string) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b User) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(len(a.ID), len(b.ID)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

func (s *userStore) get(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (s *userStore) create(u User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) >= maxUsers {
		return nil, gateway.Fail("QuotaExceeded")
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return nil, gateway.Fail("EmailTaken").WithField("email")
		}
	}
	u.ID = strconv.Itoa(s.nextID)
	u.CreatedAt = time.Now()
	s.nextID++
	s.users[u.ID] = &u
	cp := u
	return &cp, nil
}

func (s *userStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// User is the core domain entity.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Nickname  *string   `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

type HealthResp struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

type ListUsersReq struct {
	Role  string `query:"role"`
	Limit int    `query:"limit" default:"50"`
}

type ListUsersResp struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

type CreateUserReq struct {
	Body struct {
		Name     string  `json:"name"`
		Email    string  `json:"email"`
		Role     string  `json:"role"`
		Nickname *string `json:"nickname"`
	}
}

type CreateUserResp struct {
	User
}

// SetHeaders points the Location header at the new user.
func (r *CreateUserResp) SetHeaders(h http.Header) {
	h.Set("Location", "/v1/users/"+r.ID)
}

type UserByIDReq struct {
	ID string `path:"id"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func handleHealth(ctx context.Context, _ *gateway.Void) (*HealthResp, error) {
	resp := &HealthResp{Status: "ok", Time: time.Now()}
	if rc := gateway.RequestContextFrom(ctx); rc != nil {
		resp.Version = rc.APIVersion
	}
	return resp, nil
}

func (s *userStore) handleList(_ context.Context, req *ListUsersReq) (*ListUsersResp, error) {
	users := s.list(req.Role)
	total := len(users)
	if req.Limit > 0 && req.Limit < len(users) {
		users = users[:req.Limit]
	}
	return &ListUsersResp{Users: users, Total: total}, nil
}

func (s *userStore) handleCreate(_ context.Context, req *CreateUserReq) (*CreateUserResp, error) {
	u, err := s.create(User{
		Name:     req.Body.Name,
		Email:    req.Body.Email,
		Role:     cmp.Or(req.Body.Role, "member"),
		Nickname: req.Body.Nickname,
	})
	if err != nil {
		return nil, err
	}
	return &CreateUserResp{User: *u}, nil
}

func (s *userStore) handleGet(_ context.Context, req *UserByIDReq) (*User, error) {
	u, ok := s.get(req.ID)
	if !ok {
		return nil, gateway.Fail("UserNotFound")
	}
	return u, nil
}

func (s *userStore) handleDelete(_ context.Context, req *UserByIDReq) (*gateway.Void, error) {
	if !s.delete(req.ID) {
		return nil, gateway.Fail("UserNotFound")
	}
	return nil, nil
}
