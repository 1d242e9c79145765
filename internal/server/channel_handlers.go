package server

import (
	"encoding/hex"
	"errors"

	"github.com/darkrelay/darkrelay/internal/channels"
	"github.com/darkrelay/darkrelay/internal/metrics"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// historyLimit is how many stored messages a fresh join receives.
const historyLimit = 50

// handleJoin moves the session into a channel. The previous channel is
// left first so a failed join never leaves the session in two member
// sets; the ban gate runs on the target before the member set changes.
func (sess *session) handleJoin(m *protocol.JoinChannel) {
	sess.leaveCurrentChannel()

	if existing, ok := sess.srv.channels.Info(m.Name); ok {
		if ban, banned := sess.srv.bans.Get(existing.ID, sess.user.ID); banned {
			sess.log.Debug().Str("channel", m.Name).Msg("Join refused, banned")
			sess.enqueue(&protocol.JoinFailure{
				Meta:    sess.srv.nextMeta(),
				Channel: m.Name,
				Reason:  ban.DenyReason(),
			})
			return
		}
	}

	info, created, err := sess.srv.channels.Join(sess.id, m.Name, m.Password)
	if err != nil {
		reason := "unable to join channel"
		switch {
		case errors.Is(err, channels.ErrNameNotAllowed):
			reason = "channel name not allowed"
		case errors.Is(err, channels.ErrInvalidPassword):
			reason = "invalid channel password"
		}
		sess.log.Debug().Str("channel", m.Name).Str("reason", reason).Msg("Join refused")
		sess.enqueue(&protocol.JoinFailure{Meta: sess.srv.nextMeta(), Channel: m.Name, Reason: reason})
		return
	}

	if created {
		sess.srv.admin.SeedCreator(info.ID, sess.user.ID)
		if !info.IsPublic {
			sess.srv.admin.SetChannelType(info.ID, protocol.ChannelPrivate)
		}
		sess.log.Info().
			Str("channel", info.Name).
			Uint64("channel_id", info.ID).
			Bool("public", info.IsPublic).
			Msg("Channel created")
	}
	info.ChannelType = sess.srv.admin.ChannelType(info.ID)

	sess.srv.registry.SetChannel(sess.id, info.Name)

	sess.enqueue(&protocol.JoinSuccess{Meta: sess.srv.nextMeta(), Channel: info})
	sess.enqueue(&protocol.HistoryChunk{
		Meta:     sess.srv.nextMeta(),
		Channel:  info.Name,
		Messages: sess.srv.channels.History(info.Name, historyLimit),
	})
	sess.srv.broadcast(info.Name, &protocol.UserJoined{
		Meta:    sess.srv.nextMeta(),
		Channel: info.Name,
		User:    *sess.user,
	})
	sess.log.Debug().Str("channel", info.Name).Msg("Joined channel")
}

// handleSend appends an opaque message to the sender's current channel and
// fans it out. Content is never logged; only its size is.
func (sess *session) handleSend(m *protocol.SendMessage) {
	if sess.srv.registry.Channel(sess.id) != m.Channel {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "not joined to channel"})
		return
	}
	info, ok := sess.srv.channelInfo(m.Channel)
	if !ok {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "channel not found"})
		return
	}
	if !sess.srv.admin.CanSend(info.ID, sess.user.ID) {
		sess.enqueue(&protocol.AdminError{
			Meta:   sess.srv.nextMeta(),
			Reason: "you lack permission to send messages in this channel",
		})
		return
	}

	msg := protocol.ChatMessage{
		UserID:   sess.user.ID,
		Username: sess.user.Username,
		Content:  m.Content,
		Metadata: m.Metadata,
	}
	if nonceHex, ok := msg.MetadataValue("nonce"); ok {
		if nonce, err := hex.DecodeString(nonceHex); err == nil {
			msg.Nonce = nonce
		}
	}

	stored, err := sess.srv.channels.AddMessage(m.Channel, msg)
	if err != nil {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "channel not found"})
		return
	}

	n := sess.srv.broadcast(m.Channel, &protocol.MessageReceived{
		Meta:    sess.srv.nextMeta(),
		Channel: m.Channel,
		Message: stored,
	})
	metrics.RecordRelayed("chat", n)
	sess.log.Debug().
		Str("channel", m.Channel).
		Uint64("message_id", stored.ID).
		Int("bytes", len(m.Content)).
		Int("recipients", n).
		Msg("Message relayed")
}

func (sess *session) handleListChannels(*protocol.ListChannels) {
	sess.enqueue(&protocol.ChannelList{
		Meta:     sess.srv.nextMeta(),
		Channels: sess.srv.publicChannels(),
	})
}

func (sess *session) handleHistory(m *protocol.GetHistory) {
	if _, ok := sess.srv.channels.Info(m.Channel); !ok {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "channel not found"})
		return
	}
	sess.enqueue(&protocol.HistoryChunk{
		Meta:     sess.srv.nextMeta(),
		Channel:  m.Channel,
		Messages: sess.srv.channels.History(m.Channel, int(m.Limit)),
	})
}
