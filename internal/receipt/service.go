package receipt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"sync"
)

var (
	ErrUnknownSession     = errors.New("session not found")
	ErrUnknownItem        = errors.New("item not found")
	ErrUnknownParticipant = errors.New("participant not found")
	ErrSessionClosed      = errors.New("session is closed")
	ErrAwaitingVoters     = errors.New("voter count not set")
	ErrVotersAlreadySet   = errors.New("voter count already set")
	ErrInvalidVoterCount  = errors.New("voter count must be at least 1")
)

// Repository persists session snapshots. Save must be atomic per session;
// a stale version is rejected by the storage layer.
type Repository interface {
	SaveSession(ctx context.Context, snap *Snapshot) error
	LoadSession(ctx context.Context, sessionID string) (*Snapshot, error)
}

// BillSession owns one catalog, one ledger and the participant sessions for a
// single receipt. All mutation happens under mu, so commands touching the same
// item are serialized even across participants.
type BillSession struct {
	mu sync.Mutex

	ID           string
	Catalog      Catalog
	Ledger       *Ledger
	TotalVoters  int
	CustomStep   Quantity
	Participants map[string]*ParticipantSession
	State        State

	finishedCount int
	settlement    *SettlementResult
	version       int64
}

// Service is the in-memory session store and command entry point.
type Service struct {
	mu    sync.Mutex
	store map[string]*BillSession
	repo  Repository
}

// NewService creates the store. repo may be nil when persistence is not
// wanted (tests).
func NewService(repo Repository) *Service {
	return &Service{store: make(map[string]*BillSession), repo: repo}
}

// Create registers a new session in AwaitingVoters: the catalog is fixed but
// claiming cannot start until SetVoters.
func (s *Service) Create(ctx context.Context, catalog Catalog) (string, error) {
	sess := &BillSession{
		ID:           newSessionID(),
		Catalog:      catalog,
		State:        AwaitingVoters,
		Participants: make(map[string]*ParticipantSession),
	}

	s.mu.Lock()
	s.store[sess.ID] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.persistLocked(ctx, sess, nil); err != nil {
		s.mu.Lock()
		delete(s.store, sess.ID)
		s.mu.Unlock()
		return "", err
	}
	return sess.ID, nil
}

// SetVoters freezes the voter count, zeroes the ledger and moves the session
// to Allocating. The custom step is computed here, once; changing the count
// later is an error.
func (s *Service) SetVoters(ctx context.Context, sessionID string, totalVoters int) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.State {
	case Settled:
		return ErrSessionClosed
	case Allocating:
		return ErrVotersAlreadySet
	}
	if totalVoters < 1 {
		return ErrInvalidVoterCount
	}

	prev := sess.snapshotLocked()
	sess.TotalVoters = totalVoters
	sess.CustomStep = QuantityRatio(1, int64(totalVoters))
	sess.Ledger = NewLedger(sess.Catalog)
	sess.State = Allocating
	return s.persistLocked(ctx, sess, prev)
}

// CreateSession is Create followed by SetVoters, for callers that know the
// voter count up front.
func (s *Service) CreateSession(ctx context.Context, catalog Catalog, totalVoters int) (string, error) {
	id, err := s.Create(ctx, catalog)
	if err != nil {
		return "", err
	}
	if err := s.SetVoters(ctx, id, totalVoters); err != nil {
		s.mu.Lock()
		delete(s.store, id)
		s.mu.Unlock()
		return "", err
	}
	return id, nil
}

// Apply validates and applies one claim command, persists the new state, and
// returns the participant's refreshed view. Validation happens before any
// mutation, so a rejected command never touches the ledger.
func (s *Service) Apply(ctx context.Context, sessionID, participantID string, cmd Command) (ParticipantView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return ParticipantView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.State {
	case Settled:
		return ParticipantView{}, ErrSessionClosed
	case AwaitingVoters:
		return ParticipantView{}, ErrAwaitingVoters
	}

	p, err := sess.participantLocked(participantID)
	if err != nil {
		return ParticipantView{}, err
	}
	if cmd.Kind != CmdFinish {
		if _, ok := sess.Catalog.Item(cmd.ItemID); !ok {
			return ParticipantView{}, ErrUnknownItem
		}
	}

	prev := sess.snapshotLocked()
	sess.applyLocked(p, cmd)
	if err := s.persistLocked(ctx, sess, prev); err != nil {
		return ParticipantView{}, err
	}
	return sess.viewLocked(p), nil
}

// View returns a participant's current view without mutating anything.
func (s *Service) View(sessionID, participantID string) (ParticipantView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return ParticipantView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	p, ok := sess.Participants[participantID]
	if !ok {
		return ParticipantView{}, ErrUnknownParticipant
	}
	return sess.viewLocked(p), nil
}

// Items returns the session's catalog lines.
func (s *Service) Items(sessionID string) ([]Item, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Catalog.Items(), nil
}

// Unfinished returns the participants who joined but have not finished yet,
// sorted, together with the session state.
func (s *Service) Unfinished(sessionID string) ([]string, State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, 0, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	var ids []string
	for id, p := range sess.Participants {
		if !p.Finished {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, sess.State, nil
}

// Settlement returns the final debts, or ok=false while the session has not
// settled yet.
func (s *Service) Settlement(sessionID string) (*SettlementResult, bool, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, false, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State != Settled || sess.settlement == nil {
		return nil, false, nil
	}
	res := *sess.settlement
	return &res, true, nil
}

// Restore loads a persisted session into the store, replacing any in-memory
// copy. Used at startup.
func (s *Service) Restore(ctx context.Context, sessionID string) error {
	if s.repo == nil {
		return ErrUnknownSession
	}
	snap, err := s.repo.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess, err := restoreSession(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.store[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

func (s *Service) session(id string) (*BillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.store[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// participantLocked resolves or lazily registers a participant. Registration
// is capped at the frozen voter count; anyone beyond it is unknown.
func (sess *BillSession) participantLocked(id string) (*ParticipantSession, error) {
	if p, ok := sess.Participants[id]; ok {
		return p, nil
	}
	if len(sess.Participants) >= sess.TotalVoters {
		return nil, ErrUnknownParticipant
	}
	p := newParticipantSession(id)
	sess.Participants[id] = p
	return p, nil
}

// persistLocked writes the current snapshot. On failure the previous snapshot
// is restored so memory and storage do not diverge; prev == nil means the
// session did not exist before.
func (s *Service) persistLocked(ctx context.Context, sess *BillSession, prev *Snapshot) error {
	if s.repo == nil {
		return nil
	}
	sess.version++
	if err := s.repo.SaveSession(ctx, sess.snapshotLocked()); err != nil {
		if prev != nil {
			sess.restoreLocked(prev)
		} else {
			sess.version--
		}
		return err
	}
	return nil
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
