package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/darkrelay/darkrelay/internal/auth"
	"github.com/darkrelay/darkrelay/internal/metrics"
	"github.com/darkrelay/darkrelay/internal/registry"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

const (
	// handshakeTimeout bounds each pre-auth read: gate key, ECDH key, and
	// user credentials. Authenticated sessions read without a deadline.
	handshakeTimeout = 5 * time.Second

	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 10 * time.Second

	// drainTimeout is how long the writer may keep flushing queued
	// messages after the reader has stopped.
	drainTimeout = 2 * time.Second
)

// stage is the position of a session in the connection state machine.
// Transitions only move forward and only on the reader goroutine.
type stage uint8

const (
	stageAwaitGate stage = iota
	stageGatePassed
	stageEcdhReady
	stageAuthed
)

// session is the per-connection state machine. The reader goroutine owns
// stage and user; everything cross-connection goes through the registry.
type session struct {
	srv   *Server
	id    uint64
	conn  net.Conn
	queue *registry.Queue
	log   zerolog.Logger

	stage stage
	user  *protocol.UserInfo
}

func newSession(s *Server, id uint64, conn net.Conn) *session {
	return &session{
		srv:   s,
		id:    id,
		conn:  conn,
		queue: s.registry.Add(id),
		log: s.log.With().
			Uint64("conn_id", id).
			Str("session", ulid.Make().String()).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// run drives the session to completion: writer goroutine, challenge,
// reader loop, cleanup, bounded drain.
func (sess *session) run(ctx context.Context) {
	metrics.RecordConnectionOpened()
	defer metrics.RecordConnectionClosed()
	sess.log.Info().Msg("Connection accepted")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A cancelled session context must unblock a reader that sits in a
	// deadline-free read.
	stopKick := context.AfterFunc(ctx, func() {
		sess.conn.SetReadDeadline(time.Now())
	})
	defer stopKick()

	// The writer outlives the session context so it can flush the queue
	// after the reader stops; the drain timer is its hard stop.
	writeCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		sess.writeLoop(writeCtx)
		cancel()
	}()

	sess.enqueue(&protocol.AuthChallenge{
		Meta:    sess.srv.nextMeta(),
		Message: fmt.Sprintf("special auth key required (nonce %s)", uuid.NewString()),
	})

	sess.readLoop(ctx)
	sess.cleanup()

	// Closing the queue lets the writer pop the remaining messages; the
	// timer cuts off a peer that stops reading mid-drain.
	force := time.AfterFunc(drainTimeout, func() {
		stopWriter()
		sess.conn.Close()
	})
	writerDone.Wait()
	force.Stop()
	sess.conn.Close()

	sess.log.Info().Msg("Connection closed")
}

// readLoop decodes inbound frames and dispatches them until the client
// disconnects, the context is cancelled, or a fatal violation occurs.
func (sess *session) readLoop(ctx context.Context) {
	for {
		if sess.stage < stageAuthed {
			sess.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		} else {
			sess.conn.SetReadDeadline(time.Time{})
		}
		// Checked after arming the deadline so a cancellation between
		// iterations cannot strand the next read.
		if ctx.Err() != nil {
			sess.log.Debug().Msg("Session closing on shutdown")
			return
		}

		payload, err := protocol.ReadFrame(sess.conn, sess.srv.cfg.MaxFrame)
		if err != nil {
			sess.logReadError(ctx, err)
			return
		}
		metrics.RecordFrameRead(protocol.LengthSize + len(payload))

		msg, err := protocol.DecodeClient(payload)
		if err != nil {
			sess.log.Warn().Err(err).Msg("Undecodable frame")
			return
		}

		if !sess.dispatch(msg) {
			return
		}
	}
}

func (sess *session) logReadError(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		sess.log.Debug().Msg("Session closing on shutdown")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		sess.log.Debug().Msg("Client went away")
	default:
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() && sess.stage < stageAuthed {
			sess.log.Warn().Msg("Handshake timed out")
			return
		}
		sess.log.Warn().Err(err).Msg("Read failed")
	}
}

// writeLoop is the queue's single consumer. It exits when the queue is
// closed and drained, the drain window ends, or a write fails.
func (sess *session) writeLoop(ctx context.Context) {
	for {
		msg, ok := sess.queue.Pop(ctx)
		if !ok {
			return
		}

		payload, err := protocol.EncodeServer(msg)
		if err != nil {
			sess.log.Error().Err(err).Str("type", msg.Type()).Msg("Encode failed")
			continue
		}
		sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := protocol.WriteFrame(sess.conn, payload, sess.srv.cfg.MaxFrame); err != nil {
			sess.log.Debug().Err(err).Str("type", msg.Type()).Msg("Write failed")
			return
		}
		metrics.RecordFrameWritten(protocol.LengthSize + len(payload))
	}
}

// enqueue hands msg to the session's writer. Drops are only possible after
// the registry entry is gone, at which point nobody is reading anyway.
func (sess *session) enqueue(msg protocol.ServerMessage) {
	sess.queue.Push(msg)
}

// cleanup runs exactly once after the reader stops: membership, key
// material, then the registry entry (which closes the outbound queue).
func (sess *session) cleanup() {
	sess.leaveCurrentChannel()
	sess.srv.ecdh.Remove(sess.id)
	sess.srv.registry.Remove(sess.id)
}

// leaveCurrentChannel drops the session from its channel, if any, and
// tells the remaining members.
func (sess *session) leaveCurrentChannel() {
	name := sess.srv.registry.Channel(sess.id)
	if name == "" {
		return
	}
	sess.srv.channels.Leave(sess.id, name)
	sess.srv.registry.SetChannel(sess.id, "")
	if sess.user != nil {
		sess.srv.broadcast(name, &protocol.UserLeft{
			Meta:    sess.srv.nextMeta(),
			Channel: name,
			User:    *sess.user,
		})
	}
}

// dispatch routes one decoded message by session stage. The return value
// reports whether the session should keep reading.
func (sess *session) dispatch(msg protocol.ClientMessage) bool {
	// Connect, Auth, and Disconnect are legal in every stage.
	switch m := msg.(type) {
	case *protocol.Connect:
		sess.handleConnect(m)
		return true
	case *protocol.Auth:
		return sess.handleAuth(m)
	case *protocol.Disconnect:
		sess.log.Info().Msg("Client disconnected")
		return false
	}

	if sess.stage < stageGatePassed {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "special auth required"})
		return true
	}

	switch m := msg.(type) {
	case *protocol.EcdhPublicKey:
		sess.handleEcdh(m)
		return true
	case *protocol.RegisterUser:
		sess.handleRegister(m)
		return true
	case *protocol.Login:
		sess.handleLogin(m)
		return true
	}

	if sess.stage < stageAuthed {
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: "login/register required"})
		return true
	}

	switch m := msg.(type) {
	case *protocol.JoinChannel:
		sess.handleJoin(m)
	case *protocol.SendMessage:
		sess.handleSend(m)
	case *protocol.ListChannels:
		sess.handleListChannels(m)
	case *protocol.GetHistory:
		sess.handleHistory(m)
	case *protocol.DeleteMessage:
		sess.handleDeleteMessage(m)
	case *protocol.PromoteUser:
		sess.handlePromote(m)
	case *protocol.DemoteUser:
		sess.handleDemote(m)
	case *protocol.BanUser:
		sess.handleBan(m)
	case *protocol.UnbanUser:
		sess.handleUnban(m)
	case *protocol.KickUser:
		sess.handleKick(m)
	case *protocol.ListAdmins:
		sess.handleListAdmins(m)
	case *protocol.ListBans:
		sess.handleListBans(m)
	case *protocol.ViewLogs:
		sess.handleViewLogs(m)
	case *protocol.ChangeChannelType:
		sess.handleChangeChannelType(m)
	case *protocol.DeleteChannel:
		sess.handleDeleteChannel(m)
	case *protocol.SendDM:
		sess.handleSendDM(m)
	case *protocol.GetDMHistory:
		sess.handleDMHistory(m)
	case *protocol.MarkDMRead:
		sess.handleMarkDMRead(m)
	case *protocol.OfferFile:
		sess.handleOfferFile(m)
	case *protocol.AcceptFile:
		sess.handleAcceptFile(m)
	case *protocol.DeclineFile:
		sess.handleDeclineFile(m)
	case *protocol.FileChunk:
		sess.handleFileChunk(m)
	case *protocol.CompleteFile:
		sess.handleCompleteFile(m)
	case *protocol.CancelFile:
		sess.handleCancelFile(m)
	}
	return true
}

// handleConnect records the announced client build. Nothing is gated on
// it; pre-gate clients may identify themselves.
func (sess *session) handleConnect(m *protocol.Connect) {
	ev := sess.log.Debug()
	if m.ClientName != nil {
		ev = ev.Str("client_name", *m.ClientName)
	}
	if m.ClientVersion != nil {
		ev = ev.Str("client_version", *m.ClientVersion)
	}
	ev.Msg("Client announced")
}

// handleAuth verifies the gate key. A bad key is the one violation that
// closes the connection; a repeated good key is acknowledged again.
func (sess *session) handleAuth(m *protocol.Auth) bool {
	if !auth.VerifyGateKey(sess.srv.cfg.SpecialKey, m.Key) {
		metrics.RecordAuthFailure("gate")
		sess.log.Warn().Msg("Gate key rejected")
		sess.enqueue(&protocol.AuthFailure{Meta: sess.srv.nextMeta(), Reason: "invalid special key"})
		return false
	}
	if sess.stage == stageAwaitGate {
		sess.stage = stageGatePassed
	}
	sess.log.Debug().Msg("Gate key accepted")
	sess.enqueue(&protocol.SystemMessage{
		Meta: sess.srv.nextMeta(),
		Text: "special key accepted; send ECDH public key",
	})
	return true
}

// handleEcdh runs the X25519 exchange. A repeated exchange replaces the
// stored secret.
func (sess *session) handleEcdh(m *protocol.EcdhPublicKey) {
	serverPub, err := sess.srv.ecdh.Exchange(sess.id, m.PublicKey)
	if err != nil {
		sess.log.Warn().Err(err).Int("key_len", len(m.PublicKey)).Msg("Key exchange rejected")
		sess.enqueue(&protocol.ProtocolError{Meta: sess.srv.nextMeta(), Text: err.Error()})
		return
	}
	if sess.stage == stageGatePassed {
		sess.stage = stageEcdhReady
	}
	sess.log.Debug().Msg("Key exchange complete")
	sess.enqueue(&protocol.EcdhAck{Meta: sess.srv.nextMeta(), PublicKey: serverPub})
	sess.enqueue(&protocol.SystemMessage{
		Meta: sess.srv.nextMeta(),
		Text: "encryption enabled; please login or register",
	})
}

func (sess *session) handleRegister(m *protocol.RegisterUser) {
	user, password, err := sess.srv.users.Register(m.Username)
	if err != nil {
		metrics.RecordAuthFailure("register")
		sess.log.Warn().Err(err).Msg("Registration rejected")
		sess.enqueue(&protocol.AuthFailure{Meta: sess.srv.nextMeta(), Reason: err.Error()})
		return
	}
	sess.bindUser(user)
	sess.enqueue(&protocol.AuthSuccess{
		Meta:              sess.srv.nextMeta(),
		User:              user,
		GeneratedPassword: &password,
	})
	sess.afterAuth(user)
	sess.log.Info().Uint64("user_id", user.ID).Str("username", user.Username).Msg("User registered")
}

func (sess *session) handleLogin(m *protocol.Login) {
	user, err := sess.srv.users.Login(m.Username, m.Password)
	if err != nil {
		metrics.RecordAuthFailure("login")
		sess.log.Warn().Str("username", m.Username).Msg("Login rejected")
		sess.enqueue(&protocol.AuthFailure{Meta: sess.srv.nextMeta(), Reason: err.Error()})
		return
	}
	sess.bindUser(user)
	sess.enqueue(&protocol.AuthSuccess{Meta: sess.srv.nextMeta(), User: user})
	sess.afterAuth(user)
	sess.log.Info().Uint64("user_id", user.ID).Str("username", user.Username).Msg("User logged in")
}

// bindUser attaches the authenticated identity to the connection. A
// re-login simply rebinds.
func (sess *session) bindUser(user protocol.UserInfo) {
	sess.user = &user
	sess.stage = stageAuthed
	sess.srv.registry.SetUser(sess.id, user)
}

// afterAuth pushes the post-auth bundle: the public channel list, DMs that
// arrived while the user was offline, and any pending file offers.
func (sess *session) afterAuth(user protocol.UserInfo) {
	sess.enqueue(&protocol.ChannelList{
		Meta:     sess.srv.nextMeta(),
		Channels: sess.srv.publicChannels(),
	})
	for _, stored := range sess.srv.dms.Undelivered(user.ID) {
		sess.enqueue(&protocol.DMReceived{Meta: sess.srv.nextMeta(), DM: stored})
	}
	for _, offer := range sess.srv.transfers.PendingFor(user.ID) {
		sess.enqueue(&protocol.FileOffered{Meta: sess.srv.nextMeta(), Offer: offer})
	}
}
