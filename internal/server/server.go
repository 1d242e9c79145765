// Package server implements the DarkRelay relay core: the TLS listener,
// one session per connection, and the shared stores the sessions mutate.
// Handlers never hold store locks across I/O; all cross-connection effects
// go through the registry's outbound queues.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/darkrelay/darkrelay/internal/admin"
	"github.com/darkrelay/darkrelay/internal/auth"
	"github.com/darkrelay/darkrelay/internal/bans"
	"github.com/darkrelay/darkrelay/internal/channels"
	"github.com/darkrelay/darkrelay/internal/config"
	"github.com/darkrelay/darkrelay/internal/dm"
	"github.com/darkrelay/darkrelay/internal/ecdh"
	"github.com/darkrelay/darkrelay/internal/metrics"
	"github.com/darkrelay/darkrelay/internal/registry"
	"github.com/darkrelay/darkrelay/internal/tlsutil"
	"github.com/darkrelay/darkrelay/internal/transfer"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

const sweepInterval = 60 * time.Second

// Server owns the listener and the shared state every session routes
// through. All stores are safe for concurrent use.
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	registry  *registry.Registry
	channels  *channels.Store
	admin     *admin.Store
	bans      *bans.Store
	users     *auth.Store
	ecdh      *ecdh.Manager
	dms       *dm.Store
	transfers *transfer.Store

	reloader *tlsutil.CertReloader

	nextConnID atomic.Uint64
	nextMsgID  atomic.Uint64
}

// New assembles a server around cfg. Nothing is listening until Run.
func New(cfg *config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       logger,
		registry:  registry.New(),
		channels:  channels.NewStore(cfg.ChannelPattern),
		admin:     admin.NewStore(),
		bans:      bans.NewStore(),
		users:     auth.NewStore(),
		ecdh:      ecdh.NewManager(),
		dms:       dm.NewStore(),
		transfers: transfer.NewStore(),
	}
	metrics.BindOutboundQueueDepth(s.registry.TotalQueueDepth)
	return s
}

// Run listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds the relay's TLS listener. It is split from Serve so
// callers binding port zero can read the chosen address off the
// listener before serving.
func (s *Server) Listen() (net.Listener, error) {
	tlsCfg, reloader, err := s.listenerConfig()
	if err != nil {
		return nil, err
	}
	s.reloader = reloader

	ln, err := tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return ln, nil
}

// Serve accepts sessions on ln until ctx is cancelled, then closes the
// listener and waits for every session to finish its drain window.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.channels.Ensure("general")

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Bool("self_signed", s.reloader == nil).
		Msg("Relay listening")

	g, ctx := errgroup.WithContext(ctx)

	if s.reloader != nil {
		g.Go(func() error { return s.reloader.Watch(ctx) })
	}
	g.Go(func() error {
		s.sweepLoop(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	var sessions sync.WaitGroup
	g.Go(func() error {
		defer sessions.Wait()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.log.Warn().Err(err).Msg("Accept failed")
				continue
			}
			sessions.Add(1)
			go func() {
				defer sessions.Done()
				s.handleConn(ctx, conn)
			}()
		}
	})

	err := g.Wait()
	s.log.Info().Msg("Relay stopped")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// listenerConfig picks file-based certificates with hot reload when both
// paths are configured, and a startup-generated self-signed keypair
// otherwise.
func (s *Server) listenerConfig() (*tls.Config, *tlsutil.CertReloader, error) {
	if s.cfg.TLSFromFiles() {
		reloader, err := tlsutil.NewCertReloader(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, s.log)
		if err != nil {
			return nil, nil, fmt.Errorf("load tls keypair: %w", err)
		}
		return reloader.Config(), reloader, nil
	}
	cfg, err := tlsutil.SelfSigned()
	if err != nil {
		return nil, nil, fmt.Errorf("generate self-signed certificate: %w", err)
	}
	return cfg, nil, nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	id := s.nextConnID.Add(1)
	sess := newSession(s, id, conn)
	sess.run(ctx)
}

// sweepLoop purges expired bans and stale transfers once a minute.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.bans.SweepExpired(); n > 0 {
				s.log.Debug().Int("expired", n).Msg("Purged expired bans")
			}
			if n := s.transfers.Sweep(); n > 0 {
				s.log.Debug().Int("dropped", n).Msg("Purged stale transfers")
			}
		}
	}
}

// nextMeta stamps an outbound message with a fresh server-side id.
func (s *Server) nextMeta() protocol.MessageMeta {
	return protocol.NewMeta(s.nextMsgID.Add(1))
}

// broadcast fans msg out to the channel's current member snapshot and
// returns the number of reached connections.
func (s *Server) broadcast(channel string, msg protocol.ServerMessage) int {
	members := s.channels.Members(channel)
	n := s.registry.SendMany(members, msg)
	metrics.RecordBroadcastFanout(n)
	return n
}

// sendToUser enqueues msg on every live connection bound to userID.
func (s *Server) sendToUser(userID protocol.UserID, msg protocol.ServerMessage) int {
	return s.registry.SendMany(s.registry.FindByUserID(userID), msg)
}

// channelInfo resolves a channel by name with its posting policy applied.
// The channel store only tracks identity and visibility; the policy lives
// with the role state.
func (s *Server) channelInfo(name string) (protocol.ChannelInfo, bool) {
	info, ok := s.channels.Info(name)
	if !ok {
		return protocol.ChannelInfo{}, false
	}
	info.ChannelType = s.admin.ChannelType(info.ID)
	return info, true
}

// publicChannels lists public channels with posting policies applied,
// sorted by name.
func (s *Server) publicChannels() []protocol.ChannelInfo {
	infos := s.channels.ListPublic()
	for i := range infos {
		infos[i].ChannelType = s.admin.ChannelType(infos[i].ID)
	}
	return infos
}
