// Package capture turns chat widget activity into a session transcript and ships it to the
// chat log endpoint.
//
// Every observation channel (widget hooks and the rendered-output poller) feeds a single
// ingestion function, Recorder.Ingest, which deduplicates turns, keeps the in-memory
// transcript, discovers the visitor's email and dispatches the transcript to a Sink.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"portfolio-chat/internal/domain/dto"
	"portfolio-chat/internal/domain/entities"
	"portfolio-chat/internal/identity"
	"portfolio-chat/internal/infra/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Source string

const (
	SourceMessage     Source = "message"
	SourceUserMessage Source = "user_message"
	SourceResponse    Source = "response"
	SourceThreadEvent Source = "thread_event"
	SourcePoll        Source = "poll"
)

type SinkMode int

const (
	// SinkFull resends the whole transcript on every turn.
	SinkFull SinkMode = iota
	// SinkDelta sends only what the sink has not acknowledged yet.
	SinkDelta
)

const (
	DefaultDedupWindow = 5 * time.Second
	DefaultReloadDelay = time.Second
)

// ErrNotSaved is returned when a transcript snapshot was superseded by a newer one that
// the sink did not accept.
var ErrNotSaved = errors.New("transcript snapshot not saved")

// Observation is one turn as seen by one observation channel.
type Observation struct {
	Source     Source
	Role       string
	Content    string
	MessageID  string
	ObservedAt time.Time
}

type Outcome int

const (
	Discarded Outcome = iota
	Duplicate
	Recorded
	// Identified means the turn was recorded and revealed the visitor's email.
	Identified
)

// Sink ships a transcript to the chat log endpoint.
type Sink interface {
	Send(ctx context.Context, request dto.ChatLogRequest) error
}

// Reloader restarts the page session. Implementations must not block on the recorder.
type Reloader interface {
	Reload()
}

type ReloaderFunc func()

func (f ReloaderFunc) Reload() { f() }

type Options struct {
	Session     identity.Session
	Store       identity.Store
	Sink        Sink
	Reloader    Reloader
	Logger      *logger.Logger
	Mode        SinkMode
	DedupWindow time.Duration
	ReloadDelay time.Duration
	Now         func() time.Time
}

// Recorder owns the transcript of one page session.
type Recorder struct {
	sessionID   string
	store       identity.Store
	sink        Sink
	reloader    Reloader
	log         *logger.Logger
	mode        SinkMode
	dedupWindow time.Duration
	reloadDelay time.Duration
	now         func() time.Time

	mu         sync.Mutex
	identity   identity.Identity
	transcript []dto.ChatMessage
	seenTurns  map[string]seenTurn
	seenIDs    map[string]struct{}
	attempted  int
	saved      int
	acked      int

	sendMu   sync.Mutex
	inflight sync.WaitGroup
}

func NewRecorder(opts Options) *Recorder {
	r := &Recorder{
		sessionID:   opts.Session.ID,
		identity:    opts.Session.Identity,
		store:       opts.Store,
		sink:        opts.Sink,
		reloader:    opts.Reloader,
		log:         opts.Logger,
		mode:        opts.Mode,
		dedupWindow: opts.DedupWindow,
		reloadDelay: opts.ReloadDelay,
		now:         opts.Now,
		seenTurns:   make(map[string]seenTurn),
		seenIDs:     make(map[string]struct{}),
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	if r.dedupWindow <= 0 {
		r.dedupWindow = DefaultDedupWindow
	}
	if r.reloadDelay <= 0 {
		r.reloadDelay = DefaultReloadDelay
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Ingest records one observed turn. Empty turns are discarded; a turn with an already seen
// message id, or with the same role and content as a turn seen within the dedup window,
// is a duplicate. Recorded turns are dispatched to the sink without waiting for it.
func (r *Recorder) Ingest(ctx context.Context, obs Observation) Outcome {
	content := strings.TrimSpace(obs.Content)
	if content == "" {
		return Discarded
	}
	role := entities.RoleAssistant
	if obs.Role == entities.RoleUser {
		role = entities.RoleUser
	}
	at := obs.ObservedAt
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	if r.isDuplicate(obs.MessageID, role, content, at) {
		r.mu.Unlock()
		return Duplicate
	}

	id := obs.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	r.transcript = append(r.transcript, dto.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		MessageID: id,
	})
	upto := len(r.transcript)

	discovered := ""
	if role == entities.RoleUser && !r.identity.Known() {
		if email, ok := ExtractEmail(content); ok {
			r.identity = identity.Identify(email)
			discovered = email
		}
	}
	r.mu.Unlock()

	r.log.Debug("Captured turn", logrus.Fields{"source": obs.Source, "role": role, "message_id": id, "session_id": r.sessionID})

	if discovered == "" {
		r.dispatch(ctx, upto)
		return Recorded
	}

	r.log.Info(fmt.Sprintf("Email found in %s turn", obs.Source), logrus.Fields{"email": discovered, "session_id": r.sessionID})
	if r.store != nil {
		if err := identity.RememberEmail(r.store, discovered); err != nil {
			r.log.Error(fmt.Sprintf("Failed to persist email: %v", err))
		}
	}
	err := r.send(ctx, upto)
	r.requestReload(obs.Source, err == nil)
	return Identified
}

type seenTurn struct {
	at time.Time
	// identified is set when the turn came with an upstream message id.
	identified bool
}

// isDuplicate drops a repeated message id, or a turn whose role and content match one seen
// within the dedup window. Two turns that both carry distinct upstream ids are never merged.
func (r *Recorder) isDuplicate(messageID, role, content string, at time.Time) bool {
	if messageID != "" {
		if _, ok := r.seenIDs[messageID]; ok {
			return true
		}
	}
	key := role + "\x00" + strings.Join(strings.Fields(content), " ")
	last, ok := r.seenTurns[key]
	if ok && !(last.identified && messageID != "") && absDuration(at.Sub(last.at)) < r.dedupWindow {
		return true
	}
	r.seenTurns[key] = seenTurn{at: at, identified: messageID != ""}
	if messageID != "" {
		r.seenIDs[messageID] = struct{}{}
	}
	return false
}

func (r *Recorder) dispatch(ctx context.Context, upto int) {
	ctx = context.WithoutCancel(ctx)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		_ = r.send(ctx, upto)
	}()
}

// send ships the transcript up to index upto. In full mode a snapshot older than one
// already attempted is skipped, and reports ErrNotSaved unless a snapshot covering it was
// saved; in delta mode only unacknowledged messages are sent and the acknowledgement moves
// only on success.
func (r *Recorder) send(ctx context.Context, upto int) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	var batch []dto.ChatMessage
	switch r.mode {
	case SinkDelta:
		if upto <= r.acked {
			r.mu.Unlock()
			return nil
		}
		batch = append(batch, r.transcript[r.acked:upto]...)
	default:
		if upto <= r.attempted {
			saved := upto <= r.saved
			r.mu.Unlock()
			if !saved {
				return ErrNotSaved
			}
			return nil
		}
		r.attempted = upto
		batch = append(batch, r.transcript[:upto]...)
	}
	request := dto.ChatLogRequest{
		Email:     r.emailLocked(),
		SessionID: r.sessionID,
		Messages:  batch,
	}
	r.mu.Unlock()

	if r.sink == nil {
		return nil
	}
	if err := r.sink.Send(ctx, request); err != nil {
		r.log.Error(fmt.Sprintf("Failed to save transcript: %v", err), logrus.Fields{
			"session_id":    r.sessionID,
			"message_count": len(batch),
		})
		return err
	}

	r.mu.Lock()
	if r.mode == SinkDelta && upto > r.acked {
		r.acked = upto
	}
	if upto > r.saved {
		r.saved = upto
	}
	r.mu.Unlock()
	return nil
}

func (r *Recorder) requestReload(source Source, flushed bool) {
	if r.reloader == nil {
		return
	}
	if source != SourcePoll {
		r.reloader.Reload()
		return
	}
	if !flushed {
		r.log.Warn("Transcript not saved after email capture, skipping reload", logrus.Fields{"session_id": r.sessionID})
		return
	}
	time.AfterFunc(r.reloadDelay, r.reloader.Reload)
}

func (r *Recorder) emailLocked() string {
	if r.identity.Known() {
		return r.identity.Email
	}
	return entities.PlaceholderEmail
}

// Wait blocks until every dispatched send has finished.
func (r *Recorder) Wait() {
	r.inflight.Wait()
}

func (r *Recorder) SessionID() string {
	return r.sessionID
}

func (r *Recorder) Identity() identity.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

// Transcript returns a copy of the recorded turns.
func (r *Recorder) Transcript() []dto.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.ChatMessage(nil), r.transcript...)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
