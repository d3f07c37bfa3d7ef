package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/scibono/lmsclient/applib/httputils"
	"github.com/scibono/lmsclient/users/state"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	minPasswordLen  = 8
)

var userStatuses = []string{"active", "inactive", "suspended"}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	UserType string `json:"user_type"`
	Status   string `json:"status"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Surname  *string `json:"surname"`
	UserType *string `json:"user_type"`
	Status   *string `json:"status"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// profileResponse is a user with its free-form profile attached.
type profileResponse struct {
	*state.User
	Profile map[string]interface{} `json:"profile"`
}

type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func validEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil && strings.Contains(email, "@")
}

func validStatus(status string) bool {
	for _, v := range userStatuses {
		if v == status {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func (s *Server) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, state.ErrUserNotFound):
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, state.ErrDuplicateUser):
		httputils.WriteValidationError(w, r, map[string][]string{
			"email": {"email or username already in use"},
		})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("user operation failed")
		httputils.WriteError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := r.URL.Query()
	users, total, err := state.ListUsers(s.db, state.ListFilter{
		Page:     page,
		Limit:    limit,
		Search:   query.Get("search"),
		UserType: query.Get("user_type"),
		Status:   query.Get("status"),
	})
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	httputils.WritePage(w, r, users, httputils.NewPagination(page, limit, total))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}
	user, err := state.GetUser(s.db, id)
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	httputils.WriteSuccess(w, r, http.StatusOK, "", user)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req, false); err != nil {
		httputils.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	errs := fieldErrors{}
	if req.Email == "" {
		errs.add("email", "email is required")
	} else if !validEmail(req.Email) {
		errs.add("email", "email is not a valid address")
	}
	if req.Password == "" {
		errs.add("password", "password is required")
	} else if len(req.Password) < minPasswordLen {
		errs.add("password", "password must be at least 8 characters")
	}
	if req.UserType != "" && !state.IsValidUserType(req.UserType) {
		errs.add("user_type", "user_type is not recognised")
	}
	if req.Status != "" && !validStatus(req.Status) {
		errs.add("status", "status is not recognised")
	}
	if len(errs) > 0 {
		httputils.WriteValidationError(w, r, errs)
		return
	}

	user, err := state.CreateUser(s.db, state.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Surname:  req.Surname,
		UserType: req.UserType,
		Status:   req.Status,
	})
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	s.logger.Info().Int("user_id", user.ID).Msg("user created")
	httputils.WriteSuccess(w, r, http.StatusCreated, "user created", user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}

	var req updateUserRequest
	if err := decodeBody(r, &req, false); err != nil {
		httputils.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if (req.UserType != nil || req.Status != nil) && !claimsFrom(r).IsAdmin() {
		httputils.WriteError(w, r, http.StatusForbidden, "only administrators may change user_type or status")
		return
	}

	errs := fieldErrors{}
	if req.Email != nil && !validEmail(*req.Email) {
		errs.add("email", "email is not a valid address")
	}
	if req.Username != nil && *req.Username == "" {
		errs.add("username", "username cannot be empty")
	}
	if req.UserType != nil && !state.IsValidUserType(*req.UserType) {
		errs.add("user_type", "user_type is not recognised")
	}
	if req.Status != nil && !validStatus(*req.Status) {
		errs.add("status", "status is not recognised")
	}
	if len(errs) > 0 {
		httputils.WriteValidationError(w, r, errs)
		return
	}

	user, err := state.UpdateUser(s.db, id, state.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Surname:  req.Surname,
		UserType: req.UserType,
		Status:   req.Status,
	})
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	httputils.WriteSuccess(w, r, http.StatusOK, "user updated", user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err := state.DeleteUser(s.db, id); err != nil {
		s.writeUserError(w, r, err)
		return
	}
	s.logger.Info().Int("user_id", id).Msg("user deleted")
	httputils.WriteSuccess(w, r, http.StatusOK, "user deleted", nil)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}

	var req changePasswordRequest
	if err := decodeBody(r, &req, false); err != nil {
		httputils.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	errs := fieldErrors{}
	if req.CurrentPassword == "" {
		errs.add("current_password", "current_password is required")
	}
	if req.NewPassword == "" {
		errs.add("new_password", "new_password is required")
	} else if len(req.NewPassword) < minPasswordLen {
		errs.add("new_password", "new_password must be at least 8 characters")
	}
	if len(errs) > 0 {
		httputils.WriteValidationError(w, r, errs)
		return
	}

	err := state.ChangePassword(s.db, id, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, state.ErrInvalidPassword) {
		httputils.WriteValidationError(w, r, map[string][]string{
			"current_password": {"current password is incorrect"},
		})
		return
	}
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	httputils.WriteSuccess(w, r, http.StatusOK, "password changed", nil)
}

func (s *Server) writeProfile(w http.ResponseWriter, r *http.Request, id int, message string) {
	user, err := state.GetUser(s.db, id)
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	profile, err := state.GetUserProfile(s.db, id)
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	httputils.WriteSuccess(w, r, http.StatusOK, message, profileResponse{User: user, Profile: profile})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}
	s.writeProfile(w, r, id, "")
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httputils.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	}

	var fields map[string]interface{}
	if err := decodeBody(r, &fields, false); err != nil || fields == nil {
		httputils.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := state.UpdateUserProfile(s.db, id, fields); err != nil {
		s.writeUserError(w, r, err)
		return
	}
	s.writeProfile(w, r, id, "profile updated")
}
