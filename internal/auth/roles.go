package auth

import (
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/yourusername/craft-server-manager/internal/config"
)

// Roles
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Permissions checked by the API
const (
	PermServerView      = "server.view"
	PermServerControl   = "server.control"
	PermConsoleCommand  = "console.command"
	PermPlayersManage   = "players.manage"
	PermSchedulesManage = "schedules.manage"
	PermActivityView    = "activity.view"
	PermBackupsManage   = "backups.manage"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermServerView, PermServerControl, PermConsoleCommand,
		PermPlayersManage, PermSchedulesManage, PermActivityView, PermBackupsManage,
	},
	RoleOperator: {
		PermServerView, PermServerControl, PermConsoleCommand, PermPlayersManage, PermBackupsManage,
	},
	RoleViewer: {
		PermServerView,
	},
}

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike
var ErrInvalidCredentials = errors.New("invalid username or password")

// HasPermission reports whether role grants permission
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Permissions returns the sorted permissions of role
func Permissions(role string) []string {
	perms := append([]string{}, rolePermissions[role]...)
	sort.Strings(perms)
	return perms
}

type account struct {
	passwordHash []byte
	role         string
}

// Authenticator checks credentials against the accounts in the config file
type Authenticator struct {
	mu       sync.RWMutex
	accounts map[string]account
}

// NewAuthenticator builds the account table from the auth config. The
// admin account is skipped while it has no password hash, and any account
// whose hash is not bcrypt is skipped with a warning.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{accounts: make(map[string]account)}
	if cfg.AdminUsername != "" && cfg.AdminPasswordHash != "" {
		a.add(cfg.AdminUsername, cfg.AdminPasswordHash, RoleAdmin)
	}
	for _, user := range cfg.Users {
		a.add(user.Username, user.PasswordHash, user.Role)
	}
	return a
}

func (a *Authenticator) add(username, hash, role string) {
	if _, err := HashCost(hash); err != nil {
		log.Printf("[Auth] Skipping account %s: %v", username, err)
		return
	}
	a.accounts[username] = account{passwordHash: []byte(hash), role: role}
}

// Authenticate verifies username and password and returns the user's role
func (a *Authenticator) Authenticate(username, password string) (string, error) {
	a.mu.RLock()
	acct := a.accounts[username]
	a.mu.RUnlock()

	if !checkPassword(password, acct.passwordHash) {
		return "", ErrInvalidCredentials
	}
	return acct.role, nil
}

// Role returns the current role of username, or false when the account
// no longer exists
func (a *Authenticator) Role(username string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.accounts[username]
	return acct.role, ok
}

// Len returns the number of configured accounts
func (a *Authenticator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.accounts)
}
