package server

import (
	"errors"

	"github.com/darkrelay/darkrelay/internal/metrics"
	"github.com/darkrelay/darkrelay/internal/transfer"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// sendToParties delivers one freshly built message to each distinct party
// of a transfer.
func (s *Server) sendToParties(info transfer.Info, build func() protocol.ServerMessage) {
	s.sendToUser(info.SenderID, build())
	if info.RecipientID != info.SenderID {
		s.sendToUser(info.RecipientID, build())
	}
}

// transferError maps a transfer store error onto the wire. Wrong-party
// errors are authorization denials; everything else is a state violation.
func (sess *session) transferError(err error) {
	switch {
	case errors.Is(err, transfer.ErrNotSender),
		errors.Is(err, transfer.ErrNotRecipient),
		errors.Is(err, transfer.ErrNotParty):
		sess.enqueue(&protocol.AdminError{Meta: sess.srv.nextMeta(), Reason: err.Error()})
	default:
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: err.Error()})
	}
}

func (sess *session) handleOfferFile(m *protocol.OfferFile) {
	if _, ok := sess.resolveUser(m.RecipientID); !ok {
		return
	}

	info := sess.srv.transfers.Create(sess.user.ID, sess.user.Username, m.RecipientID,
		m.FileName, m.FileSize, m.FileHash)
	sess.enqueue(&protocol.FileOfferAck{
		Meta:        sess.srv.nextMeta(),
		TransferID:  info.ID,
		RecipientID: m.RecipientID,
	})
	sess.srv.sendToUser(m.RecipientID, &protocol.FileOffered{Meta: sess.srv.nextMeta(), Offer: info.Offer()})
	sess.log.Info().
		Uint64("transfer_id", info.ID).
		Uint64("recipient", m.RecipientID).
		Str("file_name", m.FileName).
		Uint64("file_size", m.FileSize).
		Msg("File offered")
}

func (sess *session) handleAcceptFile(m *protocol.AcceptFile) {
	info, err := sess.srv.transfers.Accept(m.TransferID, sess.user.ID)
	if err != nil {
		sess.transferError(err)
		return
	}
	sess.srv.sendToUser(info.SenderID, &protocol.FileAccepted{Meta: sess.srv.nextMeta(), TransferID: info.ID})
	sess.log.Info().Uint64("transfer_id", info.ID).Msg("File accepted")
}

func (sess *session) handleDeclineFile(m *protocol.DeclineFile) {
	info, err := sess.srv.transfers.Decline(m.TransferID, sess.user.ID)
	if err != nil {
		sess.transferError(err)
		return
	}
	sess.srv.sendToUser(info.SenderID, &protocol.FileDeclined{Meta: sess.srv.nextMeta(), TransferID: info.ID})
	sess.log.Info().Uint64("transfer_id", info.ID).Msg("File declined")
}

// handleFileChunk relays one chunk to the recipient and buffers it for
// hash verification. Exhausting the store-wide chunk budget fails the
// transfer for both parties.
func (sess *session) handleFileChunk(m *protocol.FileChunk) {
	info, err := sess.srv.transfers.AddChunk(m.TransferID, sess.user.ID, m.ChunkIndex, m.Data)
	if errors.Is(err, transfer.ErrQueueFull) {
		sess.log.Warn().Uint64("transfer_id", info.ID).Msg("Chunk buffer exhausted, transfer failed")
		sess.srv.sendToParties(info, func() protocol.ServerMessage {
			return &protocol.FileFailed{Meta: sess.srv.nextMeta(), TransferID: info.ID, Reason: "transfer queue full"}
		})
		return
	}
	if err != nil {
		sess.transferError(err)
		return
	}

	n := sess.srv.sendToUser(info.RecipientID, &protocol.FileChunkReceived{
		Meta:       sess.srv.nextMeta(),
		TransferID: info.ID,
		ChunkIndex: m.ChunkIndex,
		Data:       m.Data,
		ChunkHash:  m.ChunkHash,
	})
	metrics.RecordRelayed("file_chunk", n)
	sess.log.Debug().
		Uint64("transfer_id", info.ID).
		Uint32("chunk_index", m.ChunkIndex).
		Int("bytes", len(m.Data)).
		Msg("Chunk relayed")
}

func (sess *session) handleCompleteFile(m *protocol.CompleteFile) {
	info, verified, err := sess.srv.transfers.Complete(m.TransferID, sess.user.ID)
	if err != nil {
		sess.transferError(err)
		return
	}

	sess.srv.sendToParties(info, func() protocol.ServerMessage {
		return &protocol.FileCompleted{Meta: sess.srv.nextMeta(), TransferID: info.ID, Verified: verified}
	})
	if !verified {
		sess.srv.sendToParties(info, func() protocol.ServerMessage {
			return &protocol.FileFailed{Meta: sess.srv.nextMeta(), TransferID: info.ID, Reason: "file hash mismatch"}
		})
	}
	sess.log.Info().
		Uint64("transfer_id", info.ID).
		Bool("verified", verified).
		Msg("File transfer completed")
}

func (sess *session) handleCancelFile(m *protocol.CancelFile) {
	info, err := sess.srv.transfers.Cancel(m.TransferID, sess.user.ID)
	if err != nil {
		sess.transferError(err)
		return
	}
	sess.srv.sendToParties(info, func() protocol.ServerMessage {
		return &protocol.FileFailed{Meta: sess.srv.nextMeta(), TransferID: info.ID, Reason: "cancelled by peer"}
	})
	sess.log.Info().Uint64("transfer_id", info.ID).Msg("File transfer cancelled")
}
