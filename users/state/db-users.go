package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateUser   = errors.New("email or username already in use")
	ErrInvalidPassword = errors.New("current password is incorrect")
)

// UserTypes lists the accepted values of User.UserType.
var UserTypes = []string{"admin", "mentor", "member", "student", "parent", "project_officer", "manager"}

// IsValidUserType reports whether t is one of UserTypes.
func IsValidUserType(t string) bool {
	for _, v := range UserTypes {
		if v == t {
			return true
		}
	}
	return false
}

type User struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Surname      string    `db:"surname" json:"surname"`
	UserType     string    `db:"user_type" json:"user_type"`
	Status       string    `db:"status" json:"status"`
	Salt         string    `db:"salt" json:"-"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Profile      string    `db:"profile" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NewUser holds the fields accepted when creating a user.
type NewUser struct {
	Username string
	Email    string
	Password string
	Name     string
	Surname  string
	UserType string
	Status   string
}

// UserUpdate holds the fields that may change on an existing user. Nil
// fields are left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Name     *string
	Surname  *string
	UserType *string
	Status   *string
}

// ListFilter selects a page of users.
type ListFilter struct {
	Page     int
	Limit    int
	Search   string
	UserType string
	Status   string
}

// -- DB Helpers --

func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users_v1 (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			surname TEXT NOT NULL DEFAULT '',
			user_type TEXT NOT NULL DEFAULT 'member',
			status TEXT NOT NULL DEFAULT 'active',
			salt TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			profile TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func hashPassword(salt, password string) string {
	hasher := sha256.New()
	hasher.Write([]byte(salt + password))
	return hex.EncodeToString(hasher.Sum(nil))
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func GetUser(db *sqlx.DB, id int) (*User, error) {
	var user User
	err := db.Get(&user, "SELECT * FROM users_v1 WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// GetUserByIdentifier looks a user up by email or username.
func GetUserByIdentifier(db *sqlx.DB, identifier string) (*User, error) {
	var user User
	err := db.Get(&user, "SELECT * FROM users_v1 WHERE email = $1 OR username = $1", identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", identifier, err)
	}
	return &user, nil
}

func CreateUser(db *sqlx.DB, u NewUser) (*User, error) {
	if u.Username == "" {
		u.Username = strings.SplitN(u.Email, "@", 2)[0]
	}
	if u.UserType == "" {
		u.UserType = "member"
	}
	if u.Status == "" {
		u.Status = "active"
	}
	// Create random salt
	salt := uuid.New().String()

	res, err := db.Exec(`
		INSERT INTO users_v1 (username, email, name, surname, user_type, status, salt, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.Username, u.Email, u.Name, u.Surname, u.UserType, u.Status, salt, hashPassword(salt, u.Password))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to insert user %s: %w", u.Email, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new user id: %w", err)
	}
	return GetUser(db, int(id))
}

// SeedAdmin creates the admin account unless a user with that email exists.
func SeedAdmin(db *sqlx.DB, email, password string) (*User, error) {
	user, err := GetUserByIdentifier(db, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	return CreateUser(db, NewUser{
		Username: "admin",
		Email:    email,
		Password: password,
		Name:     "Admin",
		UserType: "admin",
	})
}

// ListUsers returns one page of users matching f and the total number of
// matches.
func ListUsers(db *sqlx.DB, f ListFilter) ([]User, int, error) {
	var conds []string
	var args []interface{}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		conds = append(conds, "(name LIKE ? OR surname LIKE ? OR email LIKE ? OR username LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if f.UserType != "" {
		conds = append(conds, "user_type = ?")
		args = append(args, f.UserType)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.Get(&total, "SELECT COUNT(*) FROM users_v1"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	users := []User{}
	pageArgs := append(append([]interface{}{}, args...), f.Limit, (f.Page-1)*f.Limit)
	if err := db.Select(&users, "SELECT * FROM users_v1"+where+" ORDER BY id LIMIT ? OFFSET ?", pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func UpdateUser(db *sqlx.DB, id int, u UserUpdate) (*User, error) {
	var sets []string
	var args []interface{}
	add := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	add("username", u.Username)
	add("email", u.Email)
	add("name", u.Name)
	add("surname", u.Surname)
	add("user_type", u.UserType)
	add("status", u.Status)

	if len(sets) == 0 {
		return GetUser(db, id)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := db.Exec("UPDATE users_v1 SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to update user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrUserNotFound
	}
	return GetUser(db, id)
}

func DeleteUser(db *sqlx.DB, id int) error {
	res, err := db.Exec("DELETE FROM users_v1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// --- Login ---

// AttemptLogin checks identifier (email or username) and password. An
// unknown identifier is reported as a failed attempt, not an error.
func AttemptLogin(db *sqlx.DB, identifier string, password string) (bool, *User, error) {
	user, err := GetUserByIdentifier(db, identifier)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if user.Status != "active" {
		return false, user, nil
	}
	return user.PasswordHash == hashPassword(user.Salt, password), user, nil
}

func ChangePassword(db *sqlx.DB, id int, currentPassword, newPassword string) error {
	user, err := GetUser(db, id)
	if err != nil {
		return err
	}
	if user.PasswordHash != hashPassword(user.Salt, currentPassword) {
		return ErrInvalidPassword
	}

	salt := uuid.New().String()
	_, err = db.Exec(`UPDATE users_v1 SET salt = $1, password_hash = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		salt, hashPassword(salt, newPassword), id)
	if err != nil {
		return fmt.Errorf("failed to update password for user %d: %w", id, err)
	}
	return nil
}
