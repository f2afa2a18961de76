// Package services contains the application services the CLI talks to.
// This file defines the authentication service: registration, login,
// session restore from the local user record, logout, user search and
// presence changes of the signed-in user.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/client/localstate"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/presence"
	"github.com/dmitrijs2005/chatsync/internal/client/session"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/cryptox"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/google/uuid"
)

var (
	ErrUserExists         = errors.New("username or email already taken")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", common.ErrNotAuthenticated)
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create a user with a unique username and email, then sign in.
//   - Login: verify the password of the user matching a username or email.
//   - Restore: sign in from the local user record without contacting the
//     store; presence and profile are refreshed in the background.
//   - Logout: mark the user Offline, forget the local record, end the session.
//   - SearchUsers: find other users by username or display name.
//   - SetStatus: change the signed-in user's presence.
//   - UpdateProfile: change names, email, avatar and bio of the signed-in
//     user; username and email stay unique.
//   - ChangePassword: replace the password after verifying the current one.
//   - Ping: check store liveness.
type AuthService interface {
	Register(ctx context.Context, username, email, displayName string, password []byte) (models.User, error)
	Login(ctx context.Context, login string, password []byte) (models.User, error)
	Restore(ctx context.Context) (models.User, bool)
	Logout(ctx context.Context) error
	SearchUsers(ctx context.Context, term string) ([]models.User, error)
	SetStatus(ctx context.Context, status models.UserStatus) error
	UpdateProfile(ctx context.Context, p Profile) (models.User, error)
	ChangePassword(ctx context.Context, current, next []byte) error
	Ping(ctx context.Context) error
}

// Profile holds the user-editable fields of a user record.
type Profile struct {
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
	Bio         string
}

type authService struct {
	store    remote.Store
	local    *localstate.Store
	sess     *session.Session
	presence *presence.Tracker
	log      logging.Logger
	now      func() time.Time
	newID    func() string

	// background refreshes started by Restore
	bg sync.WaitGroup
}

// NewAuthService constructs an AuthService bound to the store, the local
// state and the session.
func NewAuthService(store remote.Store, local *localstate.Store, sess *session.Session, tracker *presence.Tracker, log logging.Logger) AuthService {
	return &authService{
		store:    store,
		local:    local,
		sess:     sess,
		presence: tracker,
		log:      log.With("component", "auth"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// users reads every user record.
func (a *authService) users(ctx context.Context) ([]models.User, error) {
	children, err := a.store.ListChildren(ctx, remote.UsersPath())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.User, 0, len(children))
	for _, c := range children {
		var u models.User
		if err := json.Unmarshal(c.Value, &u); err != nil {
			a.log.Warn(ctx, "skipping undecodable user", "user_id", c.Key, "error", err)
			continue
		}
		if u.ID == "" {
			u.ID = c.Key
		}
		out = append(out, u)
	}
	return out, nil
}

func validUsername(username string) error {
	if strings.ContainsAny(username, "/ ") {
		return fmt.Errorf("%w: username may not contain spaces or slashes", common.ErrInvalidOperation)
	}
	return nil
}

// ensureUnique fails with ErrUserExists when another user than selfID holds
// username or email, ignoring case.
func (a *authService) ensureUnique(ctx context.Context, selfID, username, email string) error {
	all, err := a.users(ctx)
	if err != nil {
		return err
	}
	for _, u := range all {
		if u.ID == selfID {
			continue
		}
		if strings.EqualFold(u.Username, username) || strings.EqualFold(u.Email, email) {
			return ErrUserExists
		}
	}
	return nil
}

func (a *authService) Register(ctx context.Context, username, email, displayName string, password []byte) (models.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" || len(password) == 0 {
		return models.User{}, fmt.Errorf("%w: username, email and password are required", common.ErrInvalidOperation)
	}
	if err := validUsername(username); err != nil {
		return models.User{}, err
	}
	if err := a.ensureUnique(ctx, "", username, email); err != nil {
		return models.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	now := a.now().UTC()
	if strings.TrimSpace(displayName) == "" {
		displayName = username
	}
	u := models.User{
		ID:           a.newID(),
		Username:     username,
		DisplayName:  strings.TrimSpace(displayName),
		Email:        email,
		PasswordHash: hash,
		Status:       models.StatusOnline,
		LastSeen:     now,
		CreatedAt:    now,
	}
	if err := remote.PutJSON(ctx, a.store, remote.UserPath(u.ID), u); err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	a.log.Info(ctx, "user registered", "user_id", u.ID, "username", u.Username)
	return a.signIn(ctx, u, false)
}

func (a *authService) Login(ctx context.Context, login string, password []byte) (models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return models.User{}, ErrInvalidCredentials
	}

	all, err := a.users(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range all {
		if !strings.EqualFold(u.Username, login) && !strings.EqualFold(u.Email, login) {
			continue
		}
		ok, err := cryptox.VerifyPassword(u.PasswordHash, password)
		if err != nil {
			a.log.Warn(ctx, "stored password hash unusable", "user_id", u.ID, "error", err)
			return models.User{}, ErrInvalidCredentials
		}
		if !ok {
			return models.User{}, ErrInvalidCredentials
		}
		return a.signIn(ctx, u, true)
	}
	return models.User{}, ErrInvalidCredentials
}

// signIn saves u locally, starts the session and, when markOnline is set,
// pushes the Online status.
func (a *authService) signIn(ctx context.Context, u models.User, markOnline bool) (models.User, error) {
	u = u.Public()
	u.Status = models.StatusOnline
	if err := a.local.SaveUser(u); err != nil {
		a.log.Warn(ctx, "local user not saved", "error", err)
	}
	a.sess.Set(u)
	if markOnline {
		a.presence.SetOnline(ctx, u.ID)
	}
	return u, nil
}

func (a *authService) Restore(ctx context.Context) (models.User, bool) {
	u, ok := a.local.LoadUser()
	if !ok {
		return models.User{}, false
	}
	a.sess.Set(u)

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ctx := context.WithoutCancel(ctx)
		a.presence.SetOnline(ctx, u.ID)
		a.refreshProfile(ctx, u.ID)
	}()
	return u, true
}

func (a *authService) refreshProfile(ctx context.Context, userID string) {
	var fresh models.User
	found, err := remote.GetJSON(ctx, a.store, remote.UserPath(userID), &fresh)
	if err != nil {
		a.log.Warn(ctx, "profile refresh failed", "user_id", userID, "error", err)
		return
	}
	if !found || fresh.ID != userID {
		a.log.Warn(ctx, "restored user missing from store", "user_id", userID)
		return
	}
	if a.sess.UserID() != userID {
		return
	}
	fresh = fresh.Public()
	a.sess.Set(fresh)
	if err := a.local.SaveUser(fresh); err != nil {
		a.log.Warn(ctx, "local user not saved", "error", err)
	}
}

func (a *authService) Logout(ctx context.Context) error {
	u, err := a.sess.Require()
	if err != nil {
		return err
	}
	a.presence.SetOffline(ctx, u.ID)
	a.sess.Clear()
	if err := a.local.ClearUser(); err != nil {
		return fmt.Errorf("clear local user: %w", err)
	}
	a.log.Info(ctx, "signed out", "user_id", u.ID)
	return nil
}

func (a *authService) SearchUsers(ctx context.Context, term string) ([]models.User, error) {
	me, err := a.sess.Require()
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}

	all, err := a.users(ctx)
	if err != nil {
		return nil, err
	}
	var found []models.User
	for _, u := range all {
		if u.ID == me.ID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), term) || strings.Contains(strings.ToLower(u.DisplayName), term) {
			found = append(found, u.Public())
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Username < found[j].Username })
	return found, nil
}

func (a *authService) SetStatus(ctx context.Context, status models.UserStatus) error {
	u, err := a.sess.Require()
	if err != nil {
		return err
	}
	switch status {
	case models.StatusOnline, models.StatusOffline, models.StatusDoNotDisturb:
	default:
		return fmt.Errorf("%w: unknown status %q", common.ErrInvalidOperation, status)
	}

	a.presence.SetStatus(ctx, u.ID, status)
	a.sess.Update(func(u *models.User) { u.Status = status })
	if cur, ok := a.sess.User(); ok {
		if err := a.local.SaveUser(cur); err != nil {
			a.log.Warn(ctx, "local user not saved", "error", err)
		}
	}
	return nil
}

func (a *authService) UpdateProfile(ctx context.Context, p Profile) (models.User, error) {
	me, err := a.sess.Require()
	if err != nil {
		return models.User{}, err
	}
	p.Username, p.Email = strings.TrimSpace(p.Username), strings.TrimSpace(p.Email)
	p.DisplayName, p.AvatarURL, p.Bio = strings.TrimSpace(p.DisplayName), strings.TrimSpace(p.AvatarURL), strings.TrimSpace(p.Bio)
	if p.Username == "" || p.Email == "" {
		return models.User{}, fmt.Errorf("%w: username and email are required", common.ErrInvalidOperation)
	}
	if err := validUsername(p.Username); err != nil {
		return models.User{}, err
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}
	if err := a.ensureUnique(ctx, me.ID, p.Username, p.Email); err != nil {
		return models.User{}, err
	}

	fields := map[string]string{
		"username":    p.Username,
		"displayName": p.DisplayName,
		"email":       p.Email,
		"avatarUrl":   p.AvatarURL,
		"bio":         p.Bio,
	}
	values := make(map[string]json.RawMessage, len(fields))
	for name, v := range fields {
		raw, err := remote.Encode(v)
		if err != nil {
			return models.User{}, err
		}
		values[remote.Join(remote.UserPath(me.ID), name)] = raw
	}
	// field writes leave status, lastSeen and the password hash alone
	if err := a.store.Update(ctx, values); err != nil {
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}

	a.sess.Update(func(u *models.User) {
		u.Username, u.DisplayName, u.Email = p.Username, p.DisplayName, p.Email
		u.AvatarURL, u.Bio = p.AvatarURL, p.Bio
	})
	cur, _ := a.sess.User()
	if err := a.local.SaveUser(cur); err != nil {
		a.log.Warn(ctx, "local user not saved", "error", err)
	}
	a.log.Info(ctx, "profile updated", "user_id", me.ID)
	return cur, nil
}

func (a *authService) ChangePassword(ctx context.Context, current, next []byte) error {
	me, err := a.sess.Require()
	if err != nil {
		return err
	}
	if len(next) == 0 {
		return fmt.Errorf("%w: new password is empty", common.ErrInvalidOperation)
	}

	var stored models.User
	found, err := remote.GetJSON(ctx, a.store, remote.UserPath(me.ID), &stored)
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: user %s", common.ErrNotFound, me.ID)
	}
	ok, err := cryptox.VerifyPassword(stored.PasswordHash, current)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}
	if err := remote.PutJSON(ctx, a.store, remote.Join(remote.UserPath(me.ID), "passwordHash"), hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	a.log.Info(ctx, "password changed", "user_id", me.ID)
	return nil
}

func (a *authService) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}
