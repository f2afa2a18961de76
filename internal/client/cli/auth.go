package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/presence"
	"github.com/dmitrijs2005/chatsync/internal/client/services"
	"github.com/dmitrijs2005/chatsync/internal/cryptox"
)

var (
	readLine   = ReadLine
	readSecret = ReadSecret
)

// Register prompts for username, email, display name and password, then
// creates the account and signs in.
func (a *App) Register(ctx context.Context) error {
	username, err := readLine(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	email, err := readLine(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	displayName, err := readLine(a.reader, "Display name (optional)", a.out)
	if err != nil {
		return err
	}
	password, err := readSecret(a.out, "Password")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)
	repeat, err := readSecret(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(repeat)
	if !bytes.Equal(password, repeat) {
		a.printf("Passwords do not match\n")
		return nil
	}

	u, err := a.authService.Register(ctx, username, email, displayName, password)
	if err != nil {
		a.report(err)
		return err
	}
	a.printf("Welcome, %s!\n", u.Name())
	a.afterSignIn(ctx)
	return nil
}

// Login prompts for a username or email and a password.
func (a *App) Login(ctx context.Context) error {
	login, err := readLine(a.reader, "Username or email", a.out)
	if err != nil {
		return err
	}
	password, err := readSecret(a.out, "Password")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)

	u, err := a.authService.Login(ctx, login, password)
	if err != nil {
		a.report(err)
		return err
	}
	a.printf("Login successful, hello %s\n", u.Name())
	a.afterSignIn(ctx)
	return nil
}

// Logout closes the open chat, marks the user Offline and forgets the
// saved user.
func (a *App) Logout(ctx context.Context) error {
	a.chatService.Shutdown(ctx)
	if err := a.authService.Logout(ctx); err != nil {
		a.report(err)
		return err
	}
	a.lastChats = nil
	a.printf("Logged out\n")
	return nil
}

// Search lists users whose username or display name contains the term.
func (a *App) Search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: search <text>\n")
		return nil
	}
	users, err := a.authService.SearchUsers(ctx, strings.Join(args, " "))
	if err != nil {
		a.report(err)
		return err
	}
	if len(users) == 0 {
		a.printf("No users found\n")
		return nil
	}
	for _, u := range users {
		a.printf("  %s (%s) %s\n", u.Username, u.Name(), presence.FormatUser(u))
	}
	return nil
}

// Status sets the user's presence, or prints it with the connection mode.
func (a *App) Status(ctx context.Context, args []string) error {
	if len(args) == 0 {
		u, ok := a.sess.User()
		if !ok {
			a.printf("Not logged in (%s)\n", a.mode())
			return nil
		}
		a.printf("%s is %s (%s)\n", u.Username, u.Status, a.mode())
		return nil
	}

	var status models.UserStatus
	switch strings.ToLower(args[0]) {
	case "online":
		status = models.StatusOnline
	case "offline", "invisible":
		status = models.StatusOffline
	case "dnd":
		status = models.StatusDoNotDisturb
	default:
		a.printf("Usage: status [online|offline|dnd]\n")
		return nil
	}
	if err := a.authService.SetStatus(ctx, status); err != nil {
		a.report(err)
		return err
	}
	a.printf("Status set to %s\n", status)
	return nil
}

// Profile prints the signed-in user's profile and prompts for changes.
// An empty answer keeps a field, "-" clears the avatar or bio.
func (a *App) Profile(ctx context.Context) error {
	u, ok := a.sess.User()
	if !ok {
		a.printf("Please login first\n")
		return nil
	}
	a.printf("%s (%s) <%s> %s\n", u.Name(), u.Username, u.Email, u.Status)
	if u.AvatarURL != "" {
		a.printf("avatar: %s\n", u.AvatarURL)
	}
	if u.Bio != "" {
		a.printf("bio: %s\n", u.Bio)
	}

	p := services.Profile{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
	}
	fields := []struct {
		prompt    string
		value     *string
		clearable bool
	}{
		{"Username", &p.Username, false},
		{"Display name", &p.DisplayName, false},
		{"Email", &p.Email, false},
		{"Avatar URL", &p.AvatarURL, true},
		{"Bio", &p.Bio, true},
	}
	changed := false
	for _, f := range fields {
		answer, err := readLine(a.reader, fmt.Sprintf("%s [%s]", f.prompt, *f.value), a.out)
		if err != nil {
			return err
		}
		switch {
		case answer == "":
		case answer == "-" && f.clearable:
			changed = changed || *f.value != ""
			*f.value = ""
		default:
			changed = changed || answer != *f.value
			*f.value = answer
		}
	}
	if !changed {
		a.printf("Nothing changed\n")
		return nil
	}

	updated, err := a.authService.UpdateProfile(ctx, p)
	if err != nil {
		a.report(err)
		return err
	}
	a.printf("Profile saved, you are %s\n", updated.Name())
	return nil
}

// Password changes the signed-in user's password.
func (a *App) Password(ctx context.Context) error {
	current, err := readSecret(a.out, "Current password")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(current)
	next, err := readSecret(a.out, "New password")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(next)
	repeat, err := readSecret(a.out, "Repeat new password")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(repeat)
	if !bytes.Equal(next, repeat) {
		a.printf("Passwords do not match\n")
		return nil
	}

	if err := a.authService.ChangePassword(ctx, current, next); err != nil {
		a.report(err)
		return err
	}
	a.printf("Password changed\n")
	return nil
}

// Theme switches between the dark and light theme, or prints the current one.
func (a *App) Theme(ctx context.Context, args []string) error {
	if len(args) == 0 {
		if a.local.DarkTheme() {
			a.printf("Theme: dark\n")
		} else {
			a.printf("Theme: light\n")
		}
		return nil
	}
	var dark bool
	switch strings.ToLower(args[0]) {
	case "dark":
		dark = true
	case "light":
	default:
		a.printf("Usage: theme [dark|light]\n")
		return nil
	}
	if err := a.local.SetDarkTheme(dark); err != nil {
		a.report(err)
		return err
	}
	a.printf("Theme saved\n")
	return nil
}
