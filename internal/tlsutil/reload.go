package tlsutil

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// CertReloader serves the current keypair from a pair of PEM files and
// swaps it when the files change, so certificate renewal needs no restart.
// Live connections keep their handshake-time certificate; only new
// handshakes see the update.
type CertReloader struct {
	certFile string
	keyFile  string
	log      zerolog.Logger
	watcher  *fsnotify.Watcher
	cert     atomic.Pointer[tls.Certificate]
}

// NewCertReloader loads the initial keypair and starts watching the files'
// directories. A missing or unreadable keypair at startup is an error;
// later reload failures keep the previous keypair.
func NewCertReloader(certFile, keyFile string, logger zerolog.Logger) (*CertReloader, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create certificate watcher: %w", err)
	}

	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		log:      logger,
		watcher:  watcher,
	}
	r.cert.Store(&cert)

	// Watch the parent directories; editors and cert renewers typically
	// replace files by rename, which a file-level watch would lose.
	dirs := map[string]struct{}{
		filepath.Dir(certFile): {},
		filepath.Dir(keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return r, nil
}

// Config returns a TLS config serving the reloader's current keypair.
func (r *CertReloader) Config() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// GetCertificate hands the current keypair to a TLS handshake.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.cert.Load(), nil
}

// Watch processes file events until ctx is cancelled.
func (r *CertReloader) Watch(ctx context.Context) error {
	defer r.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce so we do not read a half-written file.
			time.Sleep(100 * time.Millisecond)
			r.reload(event)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error().Err(err).Msg("Certificate watcher error")
		}
	}
}

func (r *CertReloader) matches(name string) bool {
	base := filepath.Base(name)
	return base == filepath.Base(r.certFile) || base == filepath.Base(r.keyFile)
}

func (r *CertReloader) reload(event fsnotify.Event) {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		r.log.Warn().Err(err).Str("event", event.Op.String()).Msg("Certificate reload failed; keeping previous keypair")
		return
	}
	r.cert.Store(&cert)
	r.log.Info().Str("cert", r.certFile).Msg("TLS certificate reloaded")
}
