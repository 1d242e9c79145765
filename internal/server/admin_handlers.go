package server

import (
	"fmt"
	"time"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// resolveChannel looks up a channel for an admin verb, reporting the
// failure to the client itself.
func (sess *session) resolveChannel(name string) (protocol.ChannelInfo, bool) {
	info, ok := sess.srv.channelInfo(name)
	if !ok {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "channel not found"})
	}
	return info, ok
}

// resolveUser looks up a target user, reporting the failure to the client
// itself.
func (sess *session) resolveUser(id protocol.UserID) (protocol.UserInfo, bool) {
	user, ok := sess.srv.users.User(id)
	if !ok {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "user not found"})
	}
	return user, ok
}

func (sess *session) denyPermission(perm protocol.Permission) {
	sess.enqueue(&protocol.AdminError{
		Meta:   sess.srv.nextMeta(),
		Reason: fmt.Sprintf("you lack the %s permission in this channel", perm),
	})
}

// forceRemove pulls every live connection of userID out of the named
// channel, clears its current channel, and leaves a notice on each.
func (s *Server) forceRemove(channel string, userID protocol.UserID, notice string) {
	for _, connID := range s.registry.FindByUserID(userID) {
		if s.registry.Channel(connID) != channel {
			continue
		}
		s.channels.Leave(connID, channel)
		s.registry.SetChannel(connID, "")
		s.registry.Send(connID, &protocol.SystemMessage{Meta: s.nextMeta(), Text: notice})
	}
}

// roleChangePermission decides which permission a role change needs.
// Touching SuperAdmin in either direction, or acting on someone who
// outranks the actor, is reserved for ManageRoles holders.
func (sess *session) roleChangePermission(channelID protocol.ChannelID, target protocol.UserID, newRole protocol.Role) protocol.Permission {
	actorRole := sess.srv.admin.Role(channelID, sess.user.ID)
	targetRole := sess.srv.admin.Role(channelID, target)
	if newRole >= protocol.RoleSuperAdmin || targetRole >= protocol.RoleSuperAdmin || actorRole < targetRole {
		return protocol.PermManageRoles
	}
	return protocol.PermPromoteUser
}

func (sess *session) handleDeleteMessage(m *protocol.DeleteMessage) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermDeleteMessage) {
		sess.denyPermission(protocol.PermDeleteMessage)
		return
	}
	if err := sess.srv.channels.DeleteMessage(m.Channel, m.MessageID); err != nil {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "message not found"})
		return
	}

	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username,
		"delete_message", fmt.Sprintf("message %d", m.MessageID), "")
	sess.srv.broadcast(m.Channel, &protocol.MessageDeleted{
		Meta:      sess.srv.nextMeta(),
		Channel:   m.Channel,
		MessageID: m.MessageID,
		DeletedBy: sess.user.Username,
	})
	sess.log.Info().Str("channel", m.Channel).Uint64("message_id", m.MessageID).Msg("Message deleted")
}

func (sess *session) handlePromote(m *protocol.PromoteUser) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	target, ok := sess.resolveUser(m.UserID)
	if !ok {
		return
	}
	perm := sess.roleChangePermission(info.ID, m.UserID, m.Role)
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, perm) {
		sess.denyPermission(perm)
		return
	}
	if m.Role <= sess.srv.admin.Role(info.ID, m.UserID) {
		sess.enqueue(&protocol.AdminError{
			Meta:   sess.srv.nextMeta(),
			Reason: "promotion must raise the target's role",
		})
		return
	}

	sess.srv.admin.SetRole(info.ID, m.UserID, m.Role)
	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username,
		"promote_user", target.Username, "role="+m.Role.String())
	sess.srv.broadcast(m.Channel, &protocol.UserPromoted{
		Meta:       sess.srv.nextMeta(),
		Channel:    m.Channel,
		UserID:     m.UserID,
		Username:   target.Username,
		Role:       m.Role,
		PromotedBy: sess.user.Username,
	})
	sess.log.Info().
		Str("channel", m.Channel).
		Uint64("target", m.UserID).
		Str("role", m.Role.String()).
		Msg("User promoted")
}

func (sess *session) handleDemote(m *protocol.DemoteUser) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	target, ok := sess.resolveUser(m.UserID)
	if !ok {
		return
	}
	perm := sess.roleChangePermission(info.ID, m.UserID, m.Role)
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, perm) {
		sess.denyPermission(perm)
		return
	}
	if m.Role >= sess.srv.admin.Role(info.ID, m.UserID) {
		sess.enqueue(&protocol.AdminError{
			Meta:   sess.srv.nextMeta(),
			Reason: "demotion must lower the target's role",
		})
		return
	}

	sess.srv.admin.SetRole(info.ID, m.UserID, m.Role)
	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username,
		"demote_user", target.Username, "role="+m.Role.String())
	sess.srv.broadcast(m.Channel, &protocol.UserDemoted{
		Meta:      sess.srv.nextMeta(),
		Channel:   m.Channel,
		UserID:    m.UserID,
		Username:  target.Username,
		Role:      m.Role,
		DemotedBy: sess.user.Username,
	})
	sess.log.Info().
		Str("channel", m.Channel).
		Uint64("target", m.UserID).
		Str("role", m.Role.String()).
		Msg("User demoted")
}

func (sess *session) handleBan(m *protocol.BanUser) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	target, ok := sess.resolveUser(m.UserID)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermBanUser) {
		sess.denyPermission(protocol.PermBanUser)
		return
	}

	var duration *time.Duration
	details := "duration=permanent"
	if m.DurationSeconds != nil {
		d := time.Duration(*m.DurationSeconds) * time.Second
		duration = &d
		details = "duration=" + d.String()
	}

	until := sess.srv.bans.Ban(info.ID, m.UserID, target.Username, sess.user.Username, duration, m.Reason)
	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username, "ban_user", target.Username, details)

	if ban, banned := sess.srv.bans.Get(info.ID, m.UserID); banned {
		sess.srv.forceRemove(m.Channel, m.UserID,
			fmt.Sprintf("you have been banned from %s: %s", m.Channel, ban.DenyReason()))
	}

	sess.srv.broadcast(m.Channel, &protocol.UserBanned{
		Meta:        sess.srv.nextMeta(),
		Channel:     m.Channel,
		UserID:      m.UserID,
		Username:    target.Username,
		BannedUntil: until,
		BannedBy:    sess.user.Username,
		Reason:      m.Reason,
	})
	sess.log.Info().
		Str("channel", m.Channel).
		Uint64("target", m.UserID).
		Str("details", details).
		Msg("User banned")
}

func (sess *session) handleUnban(m *protocol.UnbanUser) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	target, ok := sess.resolveUser(m.UserID)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermBanUser) {
		sess.denyPermission(protocol.PermBanUser)
		return
	}
	if !sess.srv.bans.Unban(info.ID, m.UserID) {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "no active ban for user"})
		return
	}

	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username, "unban_user", target.Username, "")
	sess.srv.broadcast(m.Channel, &protocol.UserUnbanned{
		Meta:       sess.srv.nextMeta(),
		Channel:    m.Channel,
		UserID:     m.UserID,
		Username:   target.Username,
		UnbannedBy: sess.user.Username,
	})
	sess.log.Info().Str("channel", m.Channel).Uint64("target", m.UserID).Msg("User unbanned")
}

func (sess *session) handleKick(m *protocol.KickUser) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	target, ok := sess.resolveUser(m.UserID)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermKickUser) {
		sess.denyPermission(protocol.PermKickUser)
		return
	}

	notice := "you have been kicked from " + m.Channel
	details := ""
	if m.Reason != nil {
		notice += ": " + *m.Reason
		details = "reason=" + *m.Reason
	}
	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username, "kick_user", target.Username, details)
	sess.srv.forceRemove(m.Channel, m.UserID, notice)

	sess.srv.broadcast(m.Channel, &protocol.UserKicked{
		Meta:     sess.srv.nextMeta(),
		Channel:  m.Channel,
		UserID:   m.UserID,
		Username: target.Username,
		KickedBy: sess.user.Username,
		Reason:   m.Reason,
	})
	sess.log.Info().Str("channel", m.Channel).Uint64("target", m.UserID).Msg("User kicked")
}

func (sess *session) handleListAdmins(m *protocol.ListAdmins) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	sess.enqueue(&protocol.AdminList{
		Meta:    sess.srv.nextMeta(),
		Channel: m.Channel,
		Admins:  sess.srv.admin.ListAdmins(info.ID, sess.srv.users.Username),
	})
}

func (sess *session) handleListBans(m *protocol.ListBans) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermViewLogs) {
		sess.denyPermission(protocol.PermViewLogs)
		return
	}
	sess.enqueue(&protocol.BanList{
		Meta:    sess.srv.nextMeta(),
		Channel: m.Channel,
		Bans:    sess.srv.bans.List(info.ID),
	})
}

func (sess *session) handleViewLogs(m *protocol.ViewLogs) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermViewLogs) {
		sess.denyPermission(protocol.PermViewLogs)
		return
	}
	sess.enqueue(&protocol.LogList{
		Meta:    sess.srv.nextMeta(),
		Channel: m.Channel,
		Entries: sess.srv.admin.Logs(info.ID, int(m.Limit)),
	})
}

func (sess *session) handleChangeChannelType(m *protocol.ChangeChannelType) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	if !sess.srv.admin.HasPermission(info.ID, sess.user.ID, protocol.PermManageChannel) {
		sess.denyPermission(protocol.PermManageChannel)
		return
	}

	sess.srv.admin.SetChannelType(info.ID, m.ChannelType)
	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username,
		"change_channel_type", m.Channel, "type="+m.ChannelType.String())
	sess.srv.broadcast(m.Channel, &protocol.ChannelTypeChanged{
		Meta:        sess.srv.nextMeta(),
		Channel:     m.Channel,
		ChannelType: m.ChannelType,
		ChangedBy:   sess.user.Username,
	})
	sess.log.Info().
		Str("channel", m.Channel).
		Str("type", m.ChannelType.String()).
		Msg("Channel type changed")
}

func (sess *session) handleDeleteChannel(m *protocol.DeleteChannel) {
	info, ok := sess.resolveChannel(m.Channel)
	if !ok {
		return
	}
	if sess.srv.admin.Role(info.ID, sess.user.ID) < protocol.RoleSuperAdmin {
		sess.enqueue(&protocol.AdminError{
			Meta:   sess.srv.nextMeta(),
			Reason: "only a super admin may delete this channel",
		})
		return
	}

	sess.srv.admin.Log(info.ID, sess.user.ID, sess.user.Username, "delete_channel", m.Channel, "")
	sess.srv.broadcast(m.Channel, &protocol.ChannelDeleted{
		Meta:      sess.srv.nextMeta(),
		Channel:   m.Channel,
		DeletedBy: sess.user.Username,
	})

	members, _ := sess.srv.channels.Delete(m.Channel)
	for _, connID := range members {
		if sess.srv.registry.Channel(connID) == m.Channel {
			sess.srv.registry.SetChannel(connID, "")
		}
	}
	sess.srv.admin.RemoveChannel(info.ID)
	sess.srv.bans.RemoveChannel(info.ID)
	sess.log.Info().Str("channel", m.Channel).Int("members", len(members)).Msg("Channel deleted")
}
