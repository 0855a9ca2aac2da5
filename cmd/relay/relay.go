package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"portfolio-chat/internal/capture"
	"portfolio-chat/internal/config"
	"portfolio-chat/internal/identity"
	"portfolio-chat/internal/infra/logger"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	hookMessage     = "message"
	hookUserMessage = "user_message"
	hookResponse    = "response"
	hookThreadEvent = "thread_event"
)

type hookLine struct {
	Hook string `json:"hook"`
}

// relay hosts one page session at a time. A reload ends the current recorder and
// bootstraps a new one from the identity store.
type relay struct {
	cfg      config.RelayConfig
	store    identity.Store
	sink     capture.Sink
	renderer capture.Renderer
	log      *logger.Logger
	now      func() time.Time

	reloads chan struct{}
}

func newRelay(cfg config.RelayConfig, store identity.Store, sink capture.Sink, renderer capture.Renderer, log *logger.Logger) *relay {
	return &relay{
		cfg:      cfg,
		store:    store,
		sink:     sink,
		renderer: renderer,
		log:      log,
		now:      time.Now,
		reloads:  make(chan struct{}, 1),
	}
}

// Reload never blocks: it is called from inside recorder callbacks and timers.
func (r *relay) Reload() {
	select {
	case r.reloads <- struct{}{}:
	default:
	}
}

func (r *relay) bootstrap() (*capture.Recorder, error) {
	session, err := identity.Bootstrap(r.store, r.now().UTC())
	if err != nil {
		return nil, err
	}
	r.log.Info("Chat session started", logrus.Fields{
		"session_id": session.ID,
		"identity":   session.Identity.Status.String(),
	})

	mode := capture.SinkFull
	if r.cfg.SinkMode == config.SinkModeDelta {
		mode = capture.SinkDelta
	}
	return capture.NewRecorder(capture.Options{
		Session:     session,
		Store:       r.store,
		Sink:        r.sink,
		Reloader:    r,
		Logger:      r.log,
		Mode:        mode,
		DedupWindow: r.cfg.DedupWindow,
		ReloadDelay: r.cfg.ReloadDelay,
		Now:         r.now,
	}), nil
}

// Run feeds hook events read from in until EOF or until ctx is done. A reader that is
// also an io.Closer is closed when ctx is done.
func (r *relay) Run(ctx context.Context, in io.Reader) error {
	if closer, ok := in.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	// The reader is not waited for: a blocked read on a terminal may outlive ctx.
	go func() {
		defer close(lines)
		readErr <- readLines(ctx, in, lines)
	}()

	g.Go(func() error {
		return r.loop(ctx, lines)
	})
	g.Go(func() error {
		select {
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return nil
		}
	})
	return g.Wait()
}

func (r *relay) loop(ctx context.Context, lines <-chan []byte) error {
	recorder, err := r.bootstrap()
	if err != nil {
		return err
	}
	stopPoller := r.startPoller(ctx, recorder, false)

	reload := func() error {
		stopPoller()
		recorder.Wait()
		r.log.Info("Reloading chat session", logrus.Fields{"session_id": recorder.SessionID()})

		recorder, err = r.bootstrap()
		if err != nil {
			return err
		}
		stopPoller = r.startPoller(ctx, recorder, true)
		return nil
	}

	for {
		// A pending reload goes first so no event lands on the previous session.
		select {
		case <-r.reloads:
			if err := reload(); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			stopPoller()
			recorder.Wait()
			return nil
		case line, ok := <-lines:
			if !ok {
				stopPoller()
				recorder.Wait()
				return nil
			}
			r.handleLine(ctx, recorder, line)
		case <-r.reloads:
			if err := reload(); err != nil {
				return err
			}
		}
	}
}

// startPoller runs a poller for recorder. After a reload the turns still rendered for the
// previous session are primed as seen, as a page reload would have cleared them.
func (r *relay) startPoller(ctx context.Context, recorder *capture.Recorder, reloaded bool) func() {
	if r.renderer == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	poller := capture.NewPoller(recorder, r.renderer, r.cfg.PollEvery, r.log)
	if reloaded {
		if err := poller.Prime(ctx); err != nil {
			r.log.Warn(fmt.Sprintf("Failed to read rendered turns after reload: %v", err))
		}
	}
	go func() {
		defer close(done)
		_ = poller.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *relay) handleLine(ctx context.Context, recorder *capture.Recorder, line []byte) {
	var hook hookLine
	if err := json.Unmarshal(line, &hook); err != nil {
		r.log.Warn(fmt.Sprintf("Skipping malformed event: %v", err))
		return
	}

	var err error
	switch hook.Hook {
	case hookMessage, hookUserMessage, hookResponse:
		var ev capture.MessageEvent
		if err = json.Unmarshal(line, &ev); err != nil {
			break
		}
		switch hook.Hook {
		case hookMessage:
			recorder.OnMessage(ctx, ev)
		case hookUserMessage:
			recorder.OnUserMessage(ctx, ev)
		default:
			recorder.OnResponse(ctx, ev)
		}
	case hookThreadEvent:
		var ev capture.ThreadEvent
		if err = json.Unmarshal(line, &ev); err != nil {
			break
		}
		recorder.OnThreadEvent(ctx, ev)
	default:
		r.log.Warn(fmt.Sprintf("Unknown hook %q", hook.Hook))
	}
	if err != nil {
		r.log.Warn(fmt.Sprintf("Skipping malformed %s event: %v", hook.Hook, err))
	}
}

func readLines(ctx context.Context, in io.Reader, lines chan<- []byte) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
