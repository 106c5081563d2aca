// Package pipeline drives the read, parse, log and persist cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ponytojas/airlog/internal/database"
	"github.com/ponytojas/airlog/internal/metrics"
	"github.com/ponytojas/airlog/internal/models"
	"github.com/ponytojas/airlog/internal/protocol"
	"github.com/ponytojas/airlog/internal/serial"
)

// DefaultInterval is the pause between two cycles
const DefaultInterval = 60 * time.Second

// Source yields one raw line per call. A read timeout is not an error: the
// source returns the partial line instead.
type Source interface {
	NextLine() ([]byte, error)
}

// Store persists a single reading.
type Store interface {
	Save(ctx context.Context, reading models.Reading) (models.Reading, error)
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// IOError reports a failed read from the source.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read line: %v", e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Pipeline runs on a single goroutine; it owns neither the source nor the
// store and never closes them.
type Pipeline struct {
	source   Source
	store    Store
	interval time.Duration
	sleep    Sleeper
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithInterval sets the pause between cycles
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithSleeper replaces the context-aware sleep used between cycles
func WithSleeper(s Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithLogger sets the logger readings and failures are reported to
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records cycle outcomes in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline reading from source and saving to store
func New(source Source, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		store:    store,
		interval: DefaultInterval,
		sleep:    sleepContext,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run repeats Step followed by a sleep of the configured interval until ctx
// is cancelled. Parse and save failures are logged and never end the loop;
// a disconnected device does, since the port cannot recover.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.WithField("interval", p.interval).Info("Starting reading pipeline")

	for {
		if err := p.Step(ctx); errors.Is(err, serial.ErrDisconnected) {
			return err
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// Step performs one read, parse and save. The returned error is an *IOError,
// a *protocol.ParseError or a *database.StoreError, and has already been
// logged.
func (p *Pipeline) Step(ctx context.Context) error {
	p.metrics.CycleStarted()

	raw, err := p.source.NextLine()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.metrics.ReadFailed()
		p.log.WithError(err).Error("Failed to read from sensor")
		return &IOError{Err: err}
	}

	fields, reading, err := protocol.ParseReading(raw)
	if err != nil {
		p.metrics.ParseFailed()
		p.log.WithError(err).WithField("raw", string(raw)).Warn("Failed to parse reading")
		return err
	}
	p.metrics.Parsed(reading)

	entry := p.log.WithFields(logrus.Fields{
		"co2":  reading.CO2,
		"tvoc": reading.TVOC,
	})
	for _, label := range fields.Extra() {
		entry = entry.WithField("label."+label, fields[label])
	}
	entry.Info("Received reading")

	saved, err := p.store.Save(ctx, reading)
	if err != nil {
		p.metrics.SaveFailed()

		var storeErr *database.StoreError
		if !errors.As(err, &storeErr) {
			storeErr = &database.StoreError{Op: "save", Reading: reading, Err: err}
		}
		entry.WithError(err).Errorf("Failed to save reading: %s", reading)
		return storeErr
	}
	p.metrics.Saved()

	entry.WithFields(logrus.Fields{
		"id":        saved.ID,
		"timestamp": saved.Timestamp,
	}).Debug("Saved reading")

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
