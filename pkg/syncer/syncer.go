package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/config"
	"weftlabs/weft/pkg/telemetry/metrics"
	"weftlabs/weft/pkg/transport"
)

// frameOverhead reserves room in a datagram for the frame's own JSON
// structure when packing envelopes.
const frameOverhead = 512

// Source is the local graph view the protocol advertises and serves from.
type Source interface {
	// Heads returns the local head frontier.
	Heads(ctx context.Context) ([]command.ID, error)

	// Known reports whether the command is already present locally, in
	// any state.
	Known(ctx context.Context, id command.ID) (bool, error)

	// SealedEnvelope returns the stored sealed bytes for a command, with
	// a presence flag.
	SealedEnvelope(ctx context.Context, id command.ID) ([]byte, bool, error)

	// MissingAncestors returns the identifiers currently blocking
	// pending commands, so every round retries the fetch.
	MissingAncestors() []command.ID
}

// Ingestor accepts sealed envelopes received from peers.
type Ingestor interface {
	IngestRemote(ctx context.Context, sealed []byte, from string) error
}

// Options configures a Syncer.
type Options struct {
	Config    config.SyncConfig
	Transport transport.Transport
	Source    Source
	Ingest    Ingestor
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

// Syncer keeps this device's graph converging with its configured peers. A
// cron schedule drives rounds: each round opens a session per peer,
// advertises heads, and exchanges whatever commands either side lacks.
// Inbound frames from peers are served continuously, so a device also
// answers rounds it did not initiate.
type Syncer struct {
	cfg       config.SyncConfig
	transport transport.Transport
	source    Source
	ingest    Ingestor
	log       *slog.Logger
	metrics   *metrics.Collector

	cron     *cron.Cron
	schedule cron.Schedule

	mu       stdsync.Mutex
	sessions map[uuid.UUID]*session

	done chan struct{}
	wg   stdsync.WaitGroup
}

// New creates a Syncer. The transport stays owned by the caller; Stop does
// not close it.
func New(opts Options) (*Syncer, error) {
	if opts.Transport == nil {
		return nil, errors.New("syncer: transport is required")
	}
	if opts.Source == nil {
		return nil, errors.New("syncer: source is required")
	}
	if opts.Ingest == nil {
		return nil, errors.New("syncer: ingestor is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector(config.MetricsConfig{}, nil)
	}

	schedule, err := cron.ParseStandard(opts.Config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("syncer: bad schedule %q: %w", opts.Config.Schedule, err)
	}

	return &Syncer{
		cfg:       opts.Config,
		transport: opts.Transport,
		source:    opts.Source,
		ingest:    opts.Ingest,
		log:       log,
		metrics:   collector,
		cron:      cron.New(),
		schedule:  schedule,
		sessions:  make(map[uuid.UUID]*session),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the inbound frame loop and the scheduled rounds.
func (s *Syncer) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.receiveLoop(ctx)

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		s.expireSessions(time.Now())
		s.SyncNow(ctx)
	}))
	s.cron.Start()

	s.log.Info("syncer started",
		"peers", len(s.cfg.Peers),
		"schedule", s.cfg.Schedule)
}

// Stop halts scheduled rounds and waits for the inbound loop to drain. The
// transport must be closed by its owner for the loop to exit.
func (s *Syncer) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	close(s.done)
	s.wg.Wait()
}

// SyncNow runs one round against every configured peer.
func (s *Syncer) SyncNow(ctx context.Context) {
	for _, peer := range s.cfg.Peers {
		if err := s.syncPeer(ctx, peer); err != nil {
			s.metrics.RecordSyncRound("error")
			s.log.Warn("sync round failed", "peer", peer, "error", err)
			continue
		}
		s.metrics.RecordSyncRound("ok")
	}
}

// syncPeer opens a session and advertises the local frontier. The rest of
// the exchange happens through the inbound loop.
func (s *Syncer) syncPeer(ctx context.Context, peer string) error {
	heads, err := s.source.Heads(ctx)
	if err != nil {
		return err
	}

	sess := newSession(uuid.New(), peer, true, time.Now())
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Debug("sync round", "peer", peer, "session", sess.id, "heads", len(heads))
	return s.sendFrame(ctx, peer, &frame{
		Type:    typeHeads,
		Session: sess.id,
		Heads:   heads,
	})
}

func (s *Syncer) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.transport.Receive():
			if !ok {
				return
			}
			if err := s.handleFrame(ctx, msg); err != nil {
				s.log.Warn("frame handling failed", "from", msg.From, "error", err)
			}
		}
	}
}

func (s *Syncer) handleFrame(ctx context.Context, msg transport.Message) error {
	f, err := decodeFrame(msg.Data)
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	now := time.Now()
	switch f.Type {
	case typeHeads:
		return s.handleHeads(ctx, msg.From, f, now)
	case typeRequest:
		return s.handleRequest(ctx, msg.From, f, now)
	case typeEnvelopes:
		return s.handleEnvelopes(ctx, msg.From, f, now)
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// handleHeads answers a frontier advertisement. A previously unseen session
// means the peer initiated this round, so the local frontier is advertised
// back on the same session before requesting anything missing.
func (s *Syncer) handleHeads(ctx context.Context, from string, f *frame, now time.Time) error {
	s.mu.Lock()
	sess, seen := s.sessions[f.Session]
	if seen {
		sess.touch(now)
	} else {
		s.sessions[f.Session] = newSession(f.Session, from, false, now)
	}
	s.mu.Unlock()

	if !seen {
		heads, err := s.source.Heads(ctx)
		if err != nil {
			return err
		}
		if err := s.sendFrame(ctx, from, &frame{
			Type:    typeHeads,
			Session: f.Session,
			Heads:   heads,
		}); err != nil {
			return err
		}
	}

	want, err := s.wantList(ctx, f.Heads)
	if err != nil {
		return err
	}
	want = s.claimWants(f.Session, want)
	if len(want) == 0 {
		return nil
	}
	return s.sendFrame(ctx, from, &frame{
		Type:    typeRequest,
		Session: f.Session,
		Want:    want,
	})
}

// claimWants runs the session's request dedup over want. An unknown session
// passes the list through unchanged; there is nothing to track against.
func (s *Syncer) claimWants(id uuid.UUID, want []command.ID) []command.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess.claim(want)
	}
	return want
}

// wantList filters advertised heads down to unknown commands and appends the
// ancestors still blocking pending commands.
func (s *Syncer) wantList(ctx context.Context, heads []command.ID) ([]command.ID, error) {
	requested := make(map[command.ID]bool)
	var want []command.ID

	for _, id := range heads {
		known, err := s.source.Known(ctx, id)
		if err != nil {
			return nil, err
		}
		if !known && !requested[id] {
			requested[id] = true
			want = append(want, id)
		}
	}
	for _, id := range s.source.MissingAncestors() {
		if !requested[id] {
			requested[id] = true
			want = append(want, id)
		}
	}
	return want, nil
}

// handleRequest serves stored envelopes for the identifiers the peer wants,
// packed into as few datagrams as fit.
func (s *Syncer) handleRequest(ctx context.Context, from string, f *frame, now time.Time) error {
	s.touchSession(f.Session, now)

	var batch []json.RawMessage
	batchSize := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.sendFrame(ctx, from, &frame{
			Type:      typeEnvelopes,
			Session:   f.Session,
			Envelopes: batch,
		})
		if err == nil {
			s.metrics.RecordEnvelopeSent(len(batch))
		}
		batch = nil
		batchSize = 0
		return err
	}

	for _, id := range f.Want {
		sealed, ok, err := s.source.SealedEnvelope(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug("requested command not held", "id", id, "peer", from)
			continue
		}
		if batchSize+len(sealed) > transport.MaxDatagramSize-frameOverhead {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, json.RawMessage(sealed))
		batchSize += len(sealed)
	}
	return flush()
}

// handleEnvelopes feeds received envelopes into local evaluation. A failure
// on one envelope does not stop the rest; the peer's other commands may
// still be valid.
func (s *Syncer) handleEnvelopes(ctx context.Context, from string, f *frame, now time.Time) error {
	s.touchSession(f.Session, now)

	var firstErr error
	for _, sealed := range f.Envelopes {
		s.metrics.RecordEnvelopeReceived()
		if err := s.ingest.IngestRemote(ctx, sealed, from); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.log.Debug("envelope ingest failed", "from", from, "error", err)
		}
	}

	// Ancestors the new commands turned out to miss are requested on the
	// same session, so a deep chain converges within one exchange instead
	// of one generation per scheduled round. The session dedup keeps an
	// unserved identifier from bouncing back and forth.
	if want := s.claimWants(f.Session, s.source.MissingAncestors()); len(want) > 0 {
		if err := s.sendFrame(ctx, from, &frame{
			Type:    typeRequest,
			Session: f.Session,
			Want:    want,
		}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Syncer) touchSession(id uuid.UUID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.touch(now)
	}
}

// expireSessions drops sessions idle past the configured timeout.
func (s *Syncer) expireSessions(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.stalled(now, s.cfg.SessionTimeout) {
			delete(s.sessions, id)
			s.metrics.RecordSyncRound("stalled")
			s.log.Debug("session expired",
				"session", id,
				"peer", sess.peer,
				"initiated", sess.initiated,
				"idle", now.Sub(sess.lastSeen))
		}
	}
}

// SessionCount returns the number of live sessions.
func (s *Syncer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Syncer) sendFrame(ctx context.Context, peer string, f *frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, peer, data)
}
