package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"portfolio-chat/internal/domain/entities"
	"portfolio-chat/internal/infra/logger"
)

// RenderedTurn is one turn as currently displayed by the widget.
type RenderedTurn struct {
	Turn string `json:"turn"`
	Text string `json:"text"`
}

// Renderer lists the turns currently displayed by the widget.
type Renderer interface {
	Turns(ctx context.Context) ([]RenderedTurn, error)
}

// Poller is the fallback observation channel: it rescans the rendered turns on a fixed
// interval and feeds unseen ones to the recorder.
type Poller struct {
	recorder *Recorder
	renderer Renderer
	interval time.Duration
	log      *logger.Logger
	seen     map[string]struct{}
}

func NewPoller(recorder *Recorder, renderer Renderer, interval time.Duration, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		recorder: recorder,
		renderer: renderer,
		interval: interval,
		log:      log,
		seen:     make(map[string]struct{}),
	}
}

// Run scans every interval, the first time after one interval, until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Stopped polling")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Scan(ctx); err != nil {
				p.log.Error(fmt.Sprintf("Polling error: %v", err))
			}
		}
	}
}

// Prime marks every currently rendered turn as seen without recording it. A relay calls it
// after a reload, when turns rendered for the previous session are still listed.
func (p *Poller) Prime(ctx context.Context) error {
	turns, err := p.renderer.Turns(ctx)
	if err != nil {
		return err
	}
	for _, turn := range turns {
		if text := strings.TrimSpace(turn.Text); text != "" {
			p.seen[text] = struct{}{}
		}
	}
	return nil
}

// Scan does one pass over the rendered turns. Text already seen by this poller is skipped.
// A turn that reveals the visitor's email ends the pass.
func (p *Poller) Scan(ctx context.Context) error {
	turns, err := p.renderer.Turns(ctx)
	if err != nil {
		return err
	}

	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		if _, ok := p.seen[text]; ok {
			continue
		}
		p.seen[text] = struct{}{}

		role := entities.RoleAssistant
		if turn.Turn == entities.RoleUser {
			role = entities.RoleUser
		}

		if p.recorder.Ingest(ctx, Observation{Source: SourcePoll, Role: role, Content: text}) == Identified {
			return nil
		}
	}
	return nil
}

// FileRenderer reads rendered turns from a JSON array file. A missing file renders nothing.
type FileRenderer struct {
	Path string
}

func (f FileRenderer) Turns(_ context.Context) ([]RenderedTurn, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []RenderedTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("decode rendered turns %s: %w", f.Path, err)
	}
	return turns, nil
}
