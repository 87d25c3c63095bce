package db

import (
	"fmt"
	"time"
)

// Staff roles. Scouts run sprints and reviews; fellows vote.
const (
	RoleScout  = "scout"
	RoleFellow = "fellow"
	RoleAdmin  = "admin"
)

type StaffUser struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateStaffInput struct {
	Handle       string
	PasswordHash string
	Role         string
}

func (db *DB) CreateStaff(input CreateStaffInput) (*StaffUser, error) {
	id := NewID()
	role := input.Role
	if role == "" {
		role = RoleScout
	}
	_, err := db.exec(`
		INSERT INTO staff (id, handle, password_hash, role)
		VALUES (?, ?, ?, ?)`, id, input.Handle, input.PasswordHash, role)
	if err != nil {
		return nil, fmt.Errorf("creating staff user: %w", err)
	}
	return &StaffUser{ID: id, Handle: input.Handle, Role: role}, nil
}

func (db *DB) GetStaffByHandle(handle string) (*StaffUser, string, error) {
	u := &StaffUser{}
	var passwordHash string
	err := db.QueryRow(`
		SELECT id, handle, password_hash, role, created_at
		FROM staff WHERE handle = ?`, handle).Scan(
		&u.ID, &u.Handle, &passwordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, "", err
	}
	return u, passwordHash, nil
}

func (db *DB) GetStaffByID(id string) (*StaffUser, error) {
	u := &StaffUser{}
	err := db.QueryRow(`
		SELECT id, handle, role, created_at
		FROM staff WHERE id = ?`, id).Scan(&u.ID, &u.Handle, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}
