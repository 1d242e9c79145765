package protocol

import (
	"encoding/json"
	"testing"
)

func TestDefaultPermissionTable(t *testing.T) {
	tests := []struct {
		role Role
		want []Permission
	}{
		{RoleUser, []Permission{PermSendMessage}},
		{RoleModerator, []Permission{PermSendMessage, PermDeleteMessage, PermKickUser, PermMuteUser}},
		{RoleAdmin, []Permission{
			PermSendMessage, PermDeleteMessage, PermKickUser, PermMuteUser,
			PermManageChannel, PermBanUser, PermPromoteUser, PermViewLogs,
		}},
		{RoleSuperAdmin, []Permission{
			PermSendMessage, PermDeleteMessage, PermKickUser, PermMuteUser,
			PermManageChannel, PermBanUser, PermPromoteUser, PermViewLogs,
			PermManageRoles,
		}},
	}

	allPerms := []Permission{
		PermSendMessage, PermDeleteMessage, PermManageChannel, PermBanUser,
		PermKickUser, PermMuteUser, PermPromoteUser, PermViewLogs, PermManageRoles,
	}

	for _, tt := range tests {
		granted := make(map[Permission]bool, len(tt.want))
		for _, p := range tt.want {
			granted[p] = true
		}
		for _, perm := range allPerms {
			if got := HasPermission(tt.role, perm); got != granted[perm] {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, perm, got, granted[perm])
			}
		}
		if got := len(DefaultPermissions(tt.role)); got != len(tt.want) {
			t.Errorf("DefaultPermissions(%s) has %d entries, want %d", tt.role, got, len(tt.want))
		}
	}
}

func TestRolesAreMonotonic(t *testing.T) {
	roles := []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}
	for i := 1; i < len(roles); i++ {
		lower, higher := roles[i-1], roles[i]
		for _, perm := range DefaultPermissions(lower) {
			if !HasPermission(higher, perm) {
				t.Errorf("%s holds %s but %s does not", lower, perm, higher)
			}
		}
	}
}

func TestCanSend(t *testing.T) {
	tests := []struct {
		role        Role
		channelType ChannelType
		want        bool
	}{
		{RoleUser, ChannelPublic, true},
		{RoleUser, ChannelPrivate, true},
		{RoleUser, ChannelAdminOnly, false},
		{RoleUser, ChannelReadOnly, false},
		{RoleUser, ChannelAnnouncement, false},
		{RoleModerator, ChannelAdminOnly, false},
		{RoleModerator, ChannelAnnouncement, false},
		{RoleAdmin, ChannelAdminOnly, true},
		{RoleAdmin, ChannelReadOnly, true},
		{RoleAdmin, ChannelAnnouncement, false},
		{RoleSuperAdmin, ChannelAnnouncement, true},
		{RoleSuperAdmin, ChannelReadOnly, true},
	}

	for _, tt := range tests {
		if got := CanSend(tt.role, tt.channelType); got != tt.want {
			t.Errorf("CanSend(%s, %s) = %v, want %v", tt.role, tt.channelType, got, tt.want)
		}
	}
}

func TestRoleJSON(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin} {
		data, err := json.Marshal(role)
		if err != nil {
			t.Fatalf("marshal %v: %v", role, err)
		}
		var got Role
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != role {
			t.Errorf("role %s round-tripped to %s", role, got)
		}
	}

	var r Role
	if err := json.Unmarshal([]byte(`"Emperor"`), &r); err == nil {
		t.Error("unmarshal of unknown role succeeded")
	}
	if _, err := json.Marshal(Role(99)); err == nil {
		t.Error("marshal of invalid role succeeded")
	}
}

func TestChannelTypeJSON(t *testing.T) {
	types := []ChannelType{ChannelPublic, ChannelPrivate, ChannelAdminOnly, ChannelReadOnly, ChannelAnnouncement}
	for _, ct := range types {
		data, err := json.Marshal(ct)
		if err != nil {
			t.Fatalf("marshal %v: %v", ct, err)
		}
		var got ChannelType
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != ct {
			t.Errorf("channel type %s round-tripped to %s", ct, got)
		}
	}

	var ct ChannelType
	if err := json.Unmarshal([]byte(`"Hidden"`), &ct); err == nil {
		t.Error("unmarshal of unknown channel type succeeded")
	}
}

func TestParseRole(t *testing.T) {
	if role, err := ParseRole("SuperAdmin"); err != nil || role != RoleSuperAdmin {
		t.Errorf("ParseRole(SuperAdmin) = %v, %v", role, err)
	}
	if _, err := ParseRole("superadmin"); err == nil {
		t.Error("ParseRole is case-insensitive, want exact match")
	}
}

func TestMetadataValue(t *testing.T) {
	msg := ChatMessage{Metadata: []KV{{Key: "nonce", Value: "0a0b"}, {Key: "trace", Value: "x"}}}

	if v, ok := msg.MetadataValue("nonce"); !ok || v != "0a0b" {
		t.Errorf("MetadataValue(nonce) = %q, %v", v, ok)
	}
	if _, ok := msg.MetadataValue("missing"); ok {
		t.Error("MetadataValue(missing) reported present")
	}
}
