// Package transfer tracks user-to-user file transfers: the offer ledger,
// the per-transfer lifecycle, and the buffered chunks used for hash
// verification. Chunk data is opaque; the server verifies integrity, not
// content.
package transfer

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// MaxBufferedBytes caps the chunk bytes buffered across all transfers.
// A transfer that would push past the cap fails with ErrQueueFull.
const MaxBufferedBytes int64 = 100 << 20

// Sweep thresholds. Pending offers and idle in-progress transfers are
// reaped after PendingTimeout/StaleTimeout; finished entries linger for
// TerminalRetention so late status queries still resolve.
const (
	PendingTimeout    = 5 * time.Minute
	StaleTimeout      = 5 * time.Minute
	TerminalRetention = time.Hour
)

// Lifecycle and authorization failures. ErrQueueFull doubles as the
// FileFailed reason shown to both parties.
var (
	ErrNotFound      = errors.New("transfer not found")
	ErrNotSender     = errors.New("only the sender may perform this action")
	ErrNotRecipient  = errors.New("only the recipient may perform this action")
	ErrNotParty      = errors.New("not a party to this transfer")
	ErrNotPending    = errors.New("transfer is not pending")
	ErrNotInProgress = errors.New("transfer is not in progress")
	ErrNotActive     = errors.New("transfer is not active")
	ErrQueueFull     = errors.New("transfer queue full")
)

// Status is a transfer's lifecycle state.
type Status uint8

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusDeclined
)

var statusNames = map[Status]string{
	StatusPending:    "Pending",
	StatusInProgress: "InProgress",
	StatusCompleted:  "Completed",
	StatusFailed:     "Failed",
	StatusDeclined:   "Declined",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the transfer can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeclined
}

type transfer struct {
	id          uint64
	senderID    protocol.UserID
	senderName  string
	recipientID protocol.UserID
	fileName    string
	fileSize    uint64
	fileHash    []byte
	status      Status
	createdAt   time.Time
	acceptedAt  time.Time
	finishedAt  time.Time
	lastChunkAt time.Time
	chunks      map[uint32][]byte
	chunkBytes  int64
}

// Info is the chunk-free snapshot of a transfer handed to the server for
// routing and logging.
type Info struct {
	ID          uint64
	SenderID    protocol.UserID
	SenderName  string
	RecipientID protocol.UserID
	FileName    string
	FileSize    uint64
	FileHash    []byte
	Status      Status
	CreatedAt   time.Time
}

// Offer renders the snapshot as the wire-level offer for the recipient.
func (i Info) Offer() protocol.FileOffer {
	return protocol.FileOffer{
		TransferID: i.ID,
		SenderID:   i.SenderID,
		SenderName: i.SenderName,
		FileName:   i.FileName,
		FileSize:   i.FileSize,
		FileHash:   i.FileHash,
	}
}

func (t *transfer) info() Info {
	return Info{
		ID:          t.id,
		SenderID:    t.senderID,
		SenderName:  t.senderName,
		RecipientID: t.recipientID,
		FileName:    t.fileName,
		FileSize:    t.fileSize,
		FileHash:    t.fileHash,
		Status:      t.status,
		CreatedAt:   t.createdAt,
	}
}

// releaseLocked drops buffered chunks and returns their bytes to the pool.
func (s *Store) releaseLocked(t *transfer) {
	s.buffered -= t.chunkBytes
	t.chunkBytes = 0
	t.chunks = nil
}

// Store is the transfer ledger.
type Store struct {
	mu        sync.Mutex
	transfers map[uint64]*transfer
	nextID    uint64
	buffered  int64
}

// NewStore returns an empty ledger.
func NewStore() *Store {
	return &Store{transfers: make(map[uint64]*transfer)}
}

// Create records a new offer in Pending state.
func (s *Store) Create(senderID protocol.UserID, senderName string, recipientID protocol.UserID, fileName string, fileSize uint64, fileHash []byte) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &transfer{
		id:          s.nextID,
		senderID:    senderID,
		senderName:  senderName,
		recipientID: recipientID,
		fileName:    fileName,
		fileSize:    fileSize,
		fileHash:    fileHash,
		status:      StatusPending,
		createdAt:   time.Now().UTC(),
		chunks:      make(map[uint32][]byte),
	}
	s.transfers[t.id] = t
	return t.info()
}

// Get returns the snapshot of a transfer.
func (s *Store) Get(id uint64) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return Info{}, false
	}
	return t.info(), true
}

// Accept moves a pending transfer to InProgress. Recipient only.
func (s *Store) Accept(id uint64, userID protocol.UserID) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	if userID != t.recipientID {
		return Info{}, ErrNotRecipient
	}
	if t.status != StatusPending {
		return Info{}, ErrNotPending
	}
	now := time.Now().UTC()
	t.status = StatusInProgress
	t.acceptedAt = now
	t.lastChunkAt = now
	return t.info(), nil
}

// Decline rejects a pending transfer. Recipient only.
func (s *Store) Decline(id uint64, userID protocol.UserID) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	if userID != t.recipientID {
		return Info{}, ErrNotRecipient
	}
	if t.status != StatusPending {
		return Info{}, ErrNotPending
	}
	t.status = StatusDeclined
	t.finishedAt = time.Now().UTC()
	s.releaseLocked(t)
	return t.info(), nil
}

// AddChunk buffers one chunk for verification. Sender only, InProgress
// only. When the store-wide buffer cap would be exceeded the transfer is
// failed and ErrQueueFull returned together with the updated snapshot, so
// the caller can notify both parties.
func (s *Store) AddChunk(id uint64, userID protocol.UserID, index uint32, data []byte) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	if userID != t.senderID {
		return t.info(), ErrNotSender
	}
	if t.status != StatusInProgress {
		return t.info(), ErrNotInProgress
	}

	delta := int64(len(data)) - int64(len(t.chunks[index]))
	if s.buffered+delta > MaxBufferedBytes {
		t.status = StatusFailed
		t.finishedAt = time.Now().UTC()
		s.releaseLocked(t)
		return t.info(), ErrQueueFull
	}

	t.chunks[index] = data
	t.chunkBytes += delta
	s.buffered += delta
	t.lastChunkAt = time.Now().UTC()
	return t.info(), nil
}

// Complete finishes an in-progress transfer. Sender only. The buffered
// chunks are hashed in index order and compared against the offered file
// hash; the result decides Completed versus Failed. Chunks are released
// either way.
func (s *Store) Complete(id uint64, userID protocol.UserID) (Info, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return Info{}, false, ErrNotFound
	}
	if userID != t.senderID {
		return t.info(), false, ErrNotSender
	}
	if t.status != StatusInProgress {
		return t.info(), false, ErrNotInProgress
	}

	indexes := make([]uint32, 0, len(t.chunks))
	for index := range t.chunks {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	digest := sha256.New()
	for _, index := range indexes {
		digest.Write(t.chunks[index])
	}
	verified := bytes.Equal(digest.Sum(nil), t.fileHash)

	if verified {
		t.status = StatusCompleted
	} else {
		t.status = StatusFailed
	}
	t.finishedAt = time.Now().UTC()
	s.releaseLocked(t)
	return t.info(), verified, nil
}

// Cancel aborts a pending or in-progress transfer. Either party may
// cancel; the transfer fails and both sides get notified by the caller.
func (s *Store) Cancel(id uint64, userID protocol.UserID) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	if userID != t.senderID && userID != t.recipientID {
		return t.info(), ErrNotParty
	}
	if t.status.Terminal() {
		return t.info(), ErrNotActive
	}
	t.status = StatusFailed
	t.finishedAt = time.Now().UTC()
	s.releaseLocked(t)
	return t.info(), nil
}

// PendingFor returns the pending offers addressed to a user, oldest first,
// for replay on login.
func (s *Store) PendingFor(userID protocol.UserID) []protocol.FileOffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var offers []protocol.FileOffer
	for _, t := range s.transfers {
		if t.status == StatusPending && t.recipientID == userID {
			offers = append(offers, t.info().Offer())
		}
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].TransferID < offers[j].TransferID })
	return offers
}

// Sweep drops timed-out offers, idle in-progress transfers, and aged-out
// terminal entries. Returns how many were dropped.
func (s *Store) Sweep() int {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id, t := range s.transfers {
		var expired bool
		switch {
		case t.status == StatusPending:
			expired = now.Sub(t.createdAt) > PendingTimeout
		case t.status == StatusInProgress:
			expired = now.Sub(t.lastChunkAt) > StaleTimeout
		default:
			expired = now.Sub(t.finishedAt) > TerminalRetention
		}
		if expired {
			s.releaseLocked(t)
			delete(s.transfers, id)
			dropped++
		}
	}
	return dropped
}

// BufferedBytes returns the chunk bytes currently buffered across all
// transfers.
func (s *Store) BufferedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// Len returns the number of ledger entries, terminal included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}
