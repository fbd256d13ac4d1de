// Package access implements the CommandHandlers access rule (spec.md §4.8):
// a command is accepted iff the bot runs in public mode, or the issuing
// chat is enabled, or the issuing user is Owner/Admin.
package access

import "github.com/basket/pixivbot-go/internal/model"

// Decision is the outcome of an access check, carrying a reason for audit logging.
type Decision struct {
	Allowed bool
	Reason  string
}

// Check applies the base command access rule.
func Check(publicMode, chatEnabled bool, role model.Role) Decision {
	if publicMode {
		return Decision{true, "bot_mode public"}
	}
	if chatEnabled {
		return Decision{true, "chat enabled"}
	}
	if role == model.RoleOwner || role == model.RoleAdmin {
		return Decision{true, "privileged role"}
	}
	return Decision{false, "chat disabled and user not privileged"}
}

// IsAdmin reports whether role may run Admin-gated commands
// (/enablechat, /disablechat). Owner counts as Admin.
func IsAdmin(role model.Role) bool {
	return role == model.RoleAdmin || role == model.RoleOwner
}

// IsOwner reports whether role may run Owner-gated commands
// (/setadmin, /unsetadmin, /info).
func IsOwner(role model.Role) bool {
	return role == model.RoleOwner
}
