package server

import (
	"github.com/darkrelay/darkrelay/internal/metrics"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// handleSendDM stores the DM and delivers it to every live connection of
// the recipient. An offline recipient gets it replayed at next login.
func (sess *session) handleSendDM(m *protocol.SendDM) {
	if _, ok := sess.resolveUser(m.RecipientID); !ok {
		return
	}

	stored := sess.srv.dms.Add(sess.user.ID, m.RecipientID, m.Content, m.Nonce)
	sess.enqueue(&protocol.DMSent{
		Meta:        sess.srv.nextMeta(),
		DMID:        stored.DMID,
		RecipientID: m.RecipientID,
		Timestamp:   stored.Timestamp,
	})

	n := sess.srv.sendToUser(m.RecipientID, &protocol.DMReceived{Meta: sess.srv.nextMeta(), DM: stored})
	metrics.RecordRelayed("dm", n)
	sess.log.Debug().
		Uint64("dm_id", stored.DMID).
		Uint64("recipient", m.RecipientID).
		Int("bytes", len(m.Content)).
		Int("connections", n).
		Msg("DM relayed")
}

func (sess *session) handleDMHistory(m *protocol.GetDMHistory) {
	if _, ok := sess.resolveUser(m.UserID); !ok {
		return
	}
	sess.enqueue(&protocol.DMHistory{
		Meta:     sess.srv.nextMeta(),
		UserID:   m.UserID,
		Messages: sess.srv.dms.History(sess.user.ID, m.UserID, int(m.Limit)),
	})
}

func (sess *session) handleMarkDMRead(m *protocol.MarkDMRead) {
	if !sess.srv.dms.MarkRead(m.DMID, sess.user.ID) {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "dm not found"})
	}
}
