// Package client is a headless DarkRelay protocol client: TLS dial, frame
// codec, the staged handshake (gate key, X25519 exchange, user auth), and
// the end-to-end message crypto. It has no UI or input loop; callers drive
// it and consume inbound messages through Recv.
//
// The client is not safe for concurrent stage calls; drive the handshake
// from one goroutine. Raw sends are serialized internally.
package client

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// ErrClosed is returned by Recv after Close.
var ErrClosed = errors.New("client closed")

const (
	defaultDialTimeout = 5 * time.Second
	recvBuffer         = 64
)

// Options configures Dial. The zero value targets a self-signed deployment.
type Options struct {
	// TLSConfig overrides the transport config. Nil accepts any server
	// certificate, matching self-signed deployments.
	TLSConfig *tls.Config

	// DialTimeout bounds the TCP+TLS connect. Zero means 5 s.
	DialTimeout time.Duration

	// MaxFrame caps inbound and outbound frame payloads. Zero applies the
	// protocol default.
	MaxFrame uint32

	// Logger receives connection lifecycle events. Zero value is silent.
	Logger zerolog.Logger
}

// Client is one protocol session. Inbound messages surface through Recv in
// arrival order; stage helpers consume the replies they need and leave the
// rest queued.
type Client struct {
	conn     net.Conn
	maxFrame uint32
	log      zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	received chan protocol.ServerMessage
	readErr  error
	done     chan struct{}
	once     sync.Once

	pending []protocol.ServerMessage

	challenge string
	session   *sessionCipher
	user      *protocol.UserInfo
}

// Dial connects, starts the reader, and consumes the server's opening
// challenge so stage helpers see a clean stream.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	tlsCfg := opts.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    tlsCfg,
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{
		conn:     conn,
		maxFrame: opts.MaxFrame,
		log:      opts.Logger,
		received: make(chan protocol.ServerMessage, recvBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	msg, err := c.expect(ctx, func(m protocol.ServerMessage) bool {
		_, ok := m.(*protocol.AuthChallenge)
		return ok
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("await challenge: %w", err)
	}
	c.challenge = msg.(*protocol.AuthChallenge).Message
	c.log.Debug().Str("addr", addr).Msg("Connected to relay")
	return c, nil
}

// Challenge returns the text of the server's opening challenge.
func (c *Client) Challenge() string { return c.challenge }

// User returns the identity bound by Register or Login, if any.
func (c *Client) User() *protocol.UserInfo { return c.user }

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Disconnect tells the server we are leaving, then closes.
func (c *Client) Disconnect() error {
	c.Request(&protocol.Disconnect{Meta: c.NextMeta()})
	return c.Close()
}

// NextMeta stamps a fresh client-side message id.
func (c *Client) NextMeta() protocol.MessageMeta {
	return protocol.NewMeta(c.nextID.Add(1))
}

// Request writes one message as-is. Stage helpers stamp their own metas;
// raw callers should use NextMeta.
func (c *Client) Request(msg protocol.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteClient(c.conn, msg, c.maxFrame)
}

// Recv returns the next inbound message in arrival order, starting with
// anything a stage helper skipped past.
func (c *Client) Recv(ctx context.Context) (protocol.ServerMessage, error) {
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		return msg, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c.received:
		if !ok {
			if c.readErr != nil {
				return nil, c.readErr
			}
			return nil, ErrClosed
		}
		return msg, nil
	}
}

// expect returns the first inbound message matching the predicate and
// queues everything it skipped for later Recv calls.
func (c *Client) expect(ctx context.Context, match func(protocol.ServerMessage) bool) (protocol.ServerMessage, error) {
	var skipped []protocol.ServerMessage
	defer func() {
		c.pending = append(skipped, c.pending...)
	}()
	for {
		msg, err := c.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if match(msg) {
			return msg, nil
		}
		skipped = append(skipped, msg)
	}
}

func (c *Client) readLoop() {
	defer close(c.received)
	for {
		msg, err := protocol.ReadServer(c.conn, c.maxFrame)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				c.readErr = err
			} else {
				c.readErr = io.EOF
			}
			c.log.Debug().Err(err).Msg("Reader stopped")
			return
		}
		select {
		case c.received <- msg:
		case <-c.done:
			return
		}
	}
}

// Gate presents the deployment key. A rejection is fatal server-side; the
// connection is useless afterwards.
func (c *Client) Gate(ctx context.Context, key string) error {
	if err := c.Request(&protocol.Auth{Meta: c.NextMeta(), Key: key}); err != nil {
		return err
	}
	msg, err := c.expect(ctx, func(m protocol.ServerMessage) bool {
		switch m.(type) {
		case *protocol.SystemMessage, *protocol.AuthFailure:
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if failure, ok := msg.(*protocol.AuthFailure); ok {
		return fmt.Errorf("gate rejected: %s", failure.Reason)
	}
	return nil
}

// KeyExchange runs the X25519 exchange and arms the session cipher with
// the shared secret.
func (c *Client) KeyExchange(ctx context.Context) error {
	private, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	if err := c.Request(&protocol.EcdhPublicKey{Meta: c.NextMeta(), PublicKey: private.PublicKey().Bytes()}); err != nil {
		return err
	}

	msg, err := c.expect(ctx, func(m protocol.ServerMessage) bool {
		switch m.(type) {
		case *protocol.EcdhAck, *protocol.ProtocolError:
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if perr, ok := msg.(*protocol.ProtocolError); ok {
		return fmt.Errorf("key exchange rejected: %s", perr.Text)
	}

	serverPub, err := ecdh.X25519().NewPublicKey(msg.(*protocol.EcdhAck).PublicKey)
	if err != nil {
		return fmt.Errorf("server public key: %w", err)
	}
	secret, err := private.ECDH(serverPub)
	if err != nil {
		return fmt.Errorf("compute shared secret: %w", err)
	}
	c.session, err = newSessionCipher(secret)
	if err != nil {
		return err
	}
	c.log.Debug().Msg("Session key established")
	return nil
}

// Register creates a user and returns the server-generated password.
func (c *Client) Register(ctx context.Context, username string) (protocol.UserInfo, string, error) {
	if err := c.Request(&protocol.RegisterUser{Meta: c.NextMeta(), Username: username}); err != nil {
		return protocol.UserInfo{}, "", err
	}
	success, err := c.awaitAuth(ctx)
	if err != nil {
		return protocol.UserInfo{}, "", err
	}
	password := ""
	if success.GeneratedPassword != nil {
		password = *success.GeneratedPassword
	}
	return success.User, password, nil
}

// Login authenticates an existing user.
func (c *Client) Login(ctx context.Context, username, password string) (protocol.UserInfo, error) {
	if err := c.Request(&protocol.Login{Meta: c.NextMeta(), Username: username, Password: password}); err != nil {
		return protocol.UserInfo{}, err
	}
	success, err := c.awaitAuth(ctx)
	if err != nil {
		return protocol.UserInfo{}, err
	}
	return success.User, nil
}

func (c *Client) awaitAuth(ctx context.Context) (*protocol.AuthSuccess, error) {
	msg, err := c.expect(ctx, func(m protocol.ServerMessage) bool {
		switch m.(type) {
		case *protocol.AuthSuccess, *protocol.AuthFailure:
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if failure, ok := msg.(*protocol.AuthFailure); ok {
		return nil, fmt.Errorf("auth rejected: %s", failure.Reason)
	}
	success := msg.(*protocol.AuthSuccess)
	c.user = &success.User
	return success, nil
}

// Join enters a channel and returns its info plus the replayed history.
func (c *Client) Join(ctx context.Context, channel string, password *string) (protocol.ChannelInfo, []protocol.ChatMessage, error) {
	if err := c.Request(&protocol.JoinChannel{Meta: c.NextMeta(), Name: channel, Password: password}); err != nil {
		return protocol.ChannelInfo{}, nil, err
	}
	msg, err := c.expect(ctx, func(m protocol.ServerMessage) bool {
		switch v := m.(type) {
		case *protocol.JoinSuccess:
			return v.Channel.Name == channel
		case *protocol.JoinFailure:
			return v.Channel == channel
		}
		return false
	})
	if err != nil {
		return protocol.ChannelInfo{}, nil, err
	}
	if failure, ok := msg.(*protocol.JoinFailure); ok {
		return protocol.ChannelInfo{}, nil, fmt.Errorf("join rejected: %s", failure.Reason)
	}
	info := msg.(*protocol.JoinSuccess).Channel

	chunk, err := c.expect(ctx, func(m protocol.ServerMessage) bool {
		h, ok := m.(*protocol.HistoryChunk)
		return ok && h.Channel == channel
	})
	if err != nil {
		return protocol.ChannelInfo{}, nil, err
	}
	return info, chunk.(*protocol.HistoryChunk).Messages, nil
}

// SendText posts plaintext to a channel, sealing it when a session key is
// armed. Without one the content goes out as supplied.
func (c *Client) SendText(channel string, plaintext []byte) error {
	content := plaintext
	var metadata []protocol.KV
	if c.session != nil {
		ciphertext, nonce, err := c.session.Seal(plaintext)
		if err != nil {
			return err
		}
		content = ciphertext
		metadata = []protocol.KV{{Key: "nonce", Value: hex.EncodeToString(nonce)}}
	}
	return c.Request(&protocol.SendMessage{
		Meta:     c.NextMeta(),
		Channel:  channel,
		Content:  content,
		Metadata: metadata,
	})
}

// OpenMessage recovers the plaintext of a sealed channel message received
// from another connection of the same session key.
func (c *Client) OpenMessage(msg protocol.ChatMessage) ([]byte, error) {
	if c.session == nil {
		return msg.Content, nil
	}
	nonce := msg.Nonce
	if len(nonce) == 0 {
		nonceHex, ok := msg.MetadataValue("nonce")
		if !ok {
			return nil, errors.New("message carries no nonce")
		}
		var err error
		if nonce, err = hex.DecodeString(nonceHex); err != nil {
			return nil, fmt.Errorf("decode nonce: %w", err)
		}
	}
	return c.session.Open(msg.Content, nonce)
}

// SendDM seals plaintext for a direct message. DarkRelay relays DM bodies
// opaquely; the nonce travels in its own field.
func (c *Client) SendDM(recipientID protocol.UserID, plaintext []byte) error {
	content := plaintext
	var nonce []byte
	if c.session != nil {
		var err error
		if content, nonce, err = c.session.Seal(plaintext); err != nil {
			return err
		}
	}
	return c.Request(&protocol.SendDM{
		Meta:        c.NextMeta(),
		RecipientID: recipientID,
		Content:     content,
		Nonce:       nonce,
	})
}
