package access

import (
	"testing"

	"github.com/basket/pixivbot-go/internal/model"
)

func TestCheck_PublicModeAlwaysAllows(t *testing.T) {
	d := Check(true, false, model.RoleUser)
	if !d.Allowed {
		t.Fatal("expected public mode to allow")
	}
}

func TestCheck_EnabledChatAllowsAnyUser(t *testing.T) {
	d := Check(false, true, model.RoleUser)
	if !d.Allowed {
		t.Fatal("expected enabled chat to allow")
	}
}

func TestCheck_PrivilegedUserBypassesDisabledChat(t *testing.T) {
	d := Check(false, false, model.RoleAdmin)
	if !d.Allowed {
		t.Fatal("expected admin to bypass a disabled chat")
	}
}

func TestCheck_DeniesPlainUserInDisabledPrivateChat(t *testing.T) {
	d := Check(false, false, model.RoleUser)
	if d.Allowed {
		t.Fatal("expected denial")
	}
}

func TestIsAdmin_OwnerCountsAsAdmin(t *testing.T) {
	if !IsAdmin(model.RoleOwner) {
		t.Fatal("expected owner to satisfy admin check")
	}
	if !IsAdmin(model.RoleAdmin) {
		t.Fatal("expected admin to satisfy admin check")
	}
	if IsAdmin(model.RoleUser) {
		t.Fatal("expected plain user to fail admin check")
	}
}

func TestIsOwner_OnlyOwner(t *testing.T) {
	if !IsOwner(model.RoleOwner) {
		t.Fatal("expected owner to pass")
	}
	if IsOwner(model.RoleAdmin) {
		t.Fatal("expected admin to fail owner check")
	}
}
