package services

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/oscarbot/gateway-service/gateway"
	"github.com/oscarbot/gateway-service/models"
)

// initialPassword is assigned to accounts created through register; the
// activation mail directs the user to change it.
const initialPassword = "Abc123;"

// UserService implements the user group of gateway operations: login,
// loginStatus, logout, resetPass, cancelAccount and register.
type UserService struct {
	accounts *AccountStore
	sessions SessionManager
	csrf     *CSRFSigner
	mailer   Mailer
}

// NewUserService creates the user operations module.
func NewUserService(accounts *AccountStore, sessions SessionManager, csrf *CSRFSigner, mailer Mailer) *UserService {
	return &UserService{
		accounts: accounts,
		sessions: sessions,
		csrf:     csrf,
		mailer:   mailer,
	}
}

// RegisterServices contributes the user group to the gateway registry.
func (s *UserService) RegisterServices(r *gateway.Registry) {
	r.Register("user", "login", gateway.ServiceDescriptor{RequiresParams: true, Method: "POST"}, s.Login)
	r.Register("user", "loginStatus", gateway.ServiceDescriptor{RequiresParams: true, Method: "POST"}, s.LoginStatus)
	r.Register("user", "logout", gateway.ServiceDescriptor{Private: true, RequiresParams: true, Method: "POST"}, s.Logout)
	r.Register("user", "resetPass", gateway.ServiceDescriptor{RequiresParams: true, Method: "POST"}, s.ResetPass)
	r.Register("user", "cancelAccount", gateway.ServiceDescriptor{Private: true, RequiresParams: true, Method: "POST"}, s.CancelAccount)
	r.Register("user", "register", gateway.ServiceDescriptor{RequiresParams: true, Method: "POST"}, s.Register)
}

// Login authenticates an anonymous caller with username/password and opens a
// session. An already authenticated caller gets its current session back.
func (s *UserService) Login(ctx context.Context, caller *gateway.Caller, data map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()

	name, hasName := stringField(data, "username")
	pass, hasPass := stringField(data, "password")

	if caller.IsAnonymous() && hasName && hasPass {
		account, err := s.accounts.LoadByName(ctx, name)
		if err != nil {
			slog.Error("Failed to load account for login", "error", err)
			envelope.SetError(-20, "Wrong username and/or password.")
			return envelope
		}
		if account == nil {
			envelope.SetError(-20, "Wrong username and/or password.")
			return envelope
		}
		if !s.accounts.CheckPassword(account, pass) {
			envelope.SetError(-10, "Wrong username and/or password.")
			return envelope
		}

		session, err := s.sessions.Create(ctx, account)
		if err != nil {
			slog.Error("Failed to create session", "error", err, "user", account.Name)
			envelope.SetError(-10, "Wrong username and/or password.")
			return envelope
		}

		envelope.SetOK(s.sessionResponse(session.ID, account.Name, account.UID, account.RoleList()))
		return envelope
	}

	// Caller is already authenticated (or sent no credentials): report the
	// current session instead of opening a new one.
	envelope.SetOK(s.sessionResponse(callerSessionID(caller), caller.AccountName(), callerUID(caller), callerRoles(caller)))
	return envelope
}

// LoginStatus reports whether the caller is the named logged-in user.
func (s *UserService) LoginStatus(_ context.Context, caller *gateway.Caller, data map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()

	username, _ := stringField(data, "username")
	if !caller.IsAnonymous() && caller.AccountName() == username {
		envelope.SetOK(map[string]any{"message": "Logged"})
	} else {
		envelope.SetError(-10, "Not logged")
	}
	return envelope
}

// Logout closes every session of the caller.
func (s *UserService) Logout(ctx context.Context, caller *gateway.Caller, data map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()

	username, _ := stringField(data, "username")
	if !caller.IsAnonymous() && caller.AccountName() == username {
		if err := s.sessions.DeleteForUser(ctx, caller.UID); err != nil {
			slog.Error("Failed to delete sessions on logout", "error", err, "uid", caller.UID)
		}
		envelope.SetOK(map[string]any{"message": "Logout"})
	} else {
		envelope.SetError(-10, "Not found")
	}
	return envelope
}

// ResetPass sends the password-recovery mail to the named account.
func (s *UserService) ResetPass(ctx context.Context, _ *gateway.Caller, data map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()

	name, hasName := stringField(data, "username")
	if !hasName {
		envelope.SetError(-10, "Wrong username.")
		return envelope
	}

	account, err := s.accounts.LoadByName(ctx, name)
	if err != nil {
		slog.Error("Failed to load account for password reset", "error", err)
		envelope.SetError(-20, "Wrong username.")
		return envelope
	}
	if account == nil {
		envelope.SetError(-20, "Wrong username.")
		return envelope
	}

	mailResponse, err := s.mailer.Notify(ctx, MailPasswordReset, account)
	if err != nil {
		slog.Error("Failed to send password reset mail", "error", err, "user", account.Name)
		mailResponse = "failed"
	}

	envelope.SetOK(map[string]any{
		"message":       "Sent reset password email",
		"mail_response": mailResponse,
	})
	return envelope
}

// CancelAccount blocks the named account.
func (s *UserService) CancelAccount(ctx context.Context, _ *gateway.Caller, data map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()

	name, hasName := stringField(data, "username")
	if !hasName {
		envelope.SetError(-10, "Wrong username.")
		return envelope
	}

	account, err := s.accounts.LoadByName(ctx, name)
	if err != nil {
		slog.Error("Failed to load account for cancellation", "error", err)
		envelope.SetError(-20, "Wrong username.")
		return envelope
	}
	if account == nil {
		envelope.SetError(-20, "Wrong username.")
		return envelope
	}

	if err := s.accounts.Block(ctx, account); err != nil {
		slog.Error("Failed to block account", "error", err, "user", account.Name)
		envelope.SetError(-20, "Wrong username.")
		return envelope
	}

	envelope.SetOK(map[string]any{"message": "User account has been blocked."})
	return envelope
}

// Register creates a new active account and mails its activation notice.
func (s *UserService) Register(ctx context.Context, _ *gateway.Caller, data map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()

	username, hasUsername := stringField(data, "username")
	email, hasEmail := stringField(data, "email")
	role, hasRole := stringField(data, "role")

	if !hasUsername || !hasEmail || !hasRole {
		envelope.SetError(-10, "Wrong data.")
		return envelope
	}

	if !isValidEmail(email) {
		envelope.SetError(-20, "Invalid email format.")
		return envelope
	}

	user := &models.User{
		Name:   username,
		Email:  email,
		Active: true,
	}
	if err := user.SetRoles([]string{role}); err != nil {
		envelope.SetError(-10, "Wrong data.")
		return envelope
	}
	if err := s.accounts.SetPassword(user, initialPassword); err != nil {
		slog.Error("Failed to set initial password", "error", err)
		envelope.SetError(-10, "Wrong data.")
		return envelope
	}
	if err := s.accounts.Create(ctx, user); err != nil {
		slog.Error("Failed to create account", "error", err, "user", username)
		envelope.SetError(-10, "Wrong data.")
		return envelope
	}

	if _, err := s.mailer.Notify(ctx, MailStatusActivated, user); err != nil {
		slog.Error("Failed to send activation mail", "error", err, "user", user.Name)
	}

	envelope.SetOK(map[string]any{"id": user.UID})
	return envelope
}

// sessionResponse builds the login response payload.
func (s *UserService) sessionResponse(sessionID, name string, uid uint, roles []string) map[string]any {
	csrfToken, err := s.csrf.Token(sessionID)
	if err != nil {
		slog.Error("Failed to mint csrf token", "error", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"session_name": SessionName,
		"session_id":   sessionID,
		"csrf_token":   csrfToken,
		"current_user": map[string]any{
			"name":  name,
			"uid":   uid,
			"roles": roles,
		},
	}
}

func stringField(data map[string]any, key string) (string, bool) {
	value, ok := data[key].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func callerSessionID(c *gateway.Caller) string {
	if c == nil {
		return ""
	}
	return c.SessionID
}

func callerUID(c *gateway.Caller) uint {
	if c == nil {
		return 0
	}
	return c.UID
}

func callerRoles(c *gateway.Caller) []string {
	if c == nil || c.Roles == nil {
		return []string{}
	}
	return c.Roles
}

// isValidEmail accepts addr-spec addresses without display names.
func isValidEmail(email string) bool {
	parsed, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return parsed.Address == email && strings.Contains(email, "@")
}
