// Package worker supervises the classifier subprocess and exposes a
// correlated request/response call over its newline-delimited JSON stream.
//
// The protocol carries no request ids, so exactly one request is in flight
// per process. Callers queue on a semaphore; a caller whose context ends
// while queued leaves the queue without touching the process.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/logger"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// Config describes how to run the classifier.
type Config struct {
	Command     string
	Args        []string
	Env         []string // extra KEY=VALUE pairs appended to the parent environment
	Dir         string
	Timeout     time.Duration // bounded wait for one response
	StopTimeout time.Duration // grace period between closing stdin and killing
	StderrTail  int           // bytes of stderr kept for error context
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(s *conf.WorkerSettings) Config {
	return Config{
		Command:     s.Command,
		Args:        s.Args,
		Env:         s.Env,
		Timeout:     s.Timeout,
		StopTimeout: s.StopTimeout,
	}
}

// Metrics receives supervisor events.
type Metrics interface {
	RecordRequest(durationSeconds float64, err error)
	RecordStart()
	RecordCrash()
	RecordTimeout()
	SetState(state int)
	AddWaiting(delta int)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(float64, error) {}
func (nopMetrics) RecordStart()                 {}
func (nopMetrics) RecordCrash()                 {}
func (nopMetrics) RecordTimeout()               {}
func (nopMetrics) SetState(int)                 {}
func (nopMetrics) AddWaiting(int)               {}

// Supervisor owns at most one live classifier process and restarts it
// lazily on the next call after it exits.
type Supervisor struct {
	cfg     Config
	log     logger.Logger
	metrics Metrics

	sem chan struct{} // single-flight token

	mu     sync.Mutex
	state  State
	proc   *process
	starts int

	reapers sync.WaitGroup // one per spawned process, done after handleExit
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a supervisor. No process is spawned until Start or Call.
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = DefaultStderrTail
	}

	s := &Supervisor{
		cfg:     cfg,
		metrics: nopMetrics{},
		sem:     make(chan struct{}, 1),
		state:   StateNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("worker")
	}
	s.metrics.SetState(int(StateNotStarted))
	return s
}

// Start spawns the classifier ahead of the first call.
func (s *Supervisor) Start() error {
	_, err := s.ensureRunning()
	return err
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Starts returns how many times a process has been spawned.
func (s *Supervisor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Call sends req and waits for the matching response. Every failure wraps
// ErrWorkerUnavailable. The failed request is not retried.
func (s *Supervisor) Call(ctx context.Context, req Request) (*Response, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	p, err := s.ensureRunning()
	if err != nil {
		s.metrics.RecordRequest(0, err)
		return nil, err
	}

	start := time.Now()
	resp, err := s.roundTrip(ctx, p, req)
	s.metrics.RecordRequest(time.Since(start).Seconds(), err)
	return resp, err
}

// Stop terminates the classifier and refuses further calls.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.setState(StateStopped)
	s.mu.Unlock()

	if p != nil {
		s.log.Info("stopping classifier", logger.Int("pid", p.pid()))
		p.shutdown(s.cfg.StopTimeout)
	}
	// Killed processes retired earlier may still be reaping
	s.reapers.Wait()
}

func (s *Supervisor) acquire(ctx context.Context) error {
	s.metrics.AddWaiting(1)
	defer s.metrics.AddWaiting(-1)

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return unavailable("wait", ctx.Err(), "")
	}
}

func (s *Supervisor) release() {
	<-s.sem
}

func (s *Supervisor) ensureRunning() (*process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return nil, unavailable("call", ErrStopped, "")
	}
	if s.proc != nil {
		return s.proc, nil
	}

	s.setState(StateStarting)
	s.reapers.Add(1)
	p, err := spawn(&s.cfg, s.log, s.reaped)
	if err != nil {
		s.reapers.Done()
		s.setState(StateCrashed)
		s.metrics.RecordCrash()
		s.log.Error("classifier failed to start", logger.Error(err),
			logger.String("command", s.cfg.Command))
		return nil, unavailable("spawn", err, "")
	}

	s.proc = p
	s.starts++
	s.metrics.RecordStart()
	s.setState(StateRunning)
	return p, nil
}

// retire drops p as the current process so the next call spawns a fresh
// one. The reaper may still be running for p.
func (s *Supervisor) retire(p *process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != p {
		return
	}
	s.proc = nil
	if s.state != StateStopped {
		s.setState(StateCrashed)
	}
}

// abandon kills p and retires it.
func (s *Supervisor) abandon(p *process) {
	p.kill()
	s.retire(p)
}

func (s *Supervisor) reaped(p *process) {
	defer s.reapers.Done()
	s.handleExit(p)
}

// handleExit runs on the reader goroutine once a process has been reaped.
func (s *Supervisor) handleExit(p *process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == p {
		s.proc = nil
		if s.state != StateStopped {
			s.setState(StateCrashed)
		}
	}
	if s.state == StateStopped {
		return
	}

	fields := []logger.Field{
		logger.Int("pid", p.pid()),
		logger.Duration("uptime", time.Since(p.started)),
	}
	if p.exitErr != nil {
		fields = append(fields, logger.Error(p.exitErr))
	}
	if p.killed.Load() {
		s.log.Info("classifier terminated, will restart on next request", fields...)
		return
	}
	s.metrics.RecordCrash()
	fields = append(fields, logger.String("stderr", p.tail.String()))
	s.log.Warn("classifier exited unexpectedly, will restart on next request", fields...)
}

func (s *Supervisor) setState(state State) {
	if s.state != state {
		s.log.Debug("classifier state change",
			logger.String("from", s.state.String()),
			logger.String("to", state.String()))
	}
	s.state = state
	s.metrics.SetState(int(state))
}

func (s *Supervisor) roundTrip(ctx context.Context, p *process, req Request) (*Response, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return nil, unavailable("encode", err, "")
	}

	if err := s.discardStale(p); err != nil {
		return nil, err
	}

	if _, err := p.stdin.Write(payload); err != nil {
		s.abandon(p)
		return nil, unavailable("write", err, p.tail.String())
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				s.retire(p)
				return nil, unavailable("read", p.exitDetail(), p.tail.String())
			}
			if !isRecord(line) {
				s.log.Debug("ignoring classifier output", logger.String("line", string(line)))
				continue
			}
			resp, err := decodeResponse(line)
			if err != nil {
				// Stream position can no longer be trusted
				s.abandon(p)
				return nil, unavailable("decode", err, p.tail.String())
			}
			if resp.Error != "" {
				return nil, unavailable("classify", classifierError(resp.Error), "")
			}
			return resp, nil

		case <-timer.C:
			// A late reply would be read by the next caller
			s.abandon(p)
			s.metrics.RecordTimeout()
			s.log.Warn("classifier timed out",
				logger.String("image", req.Image),
				logger.Duration("timeout", s.cfg.Timeout))
			return nil, unavailable("read", ErrTimeout, p.tail.String())

		case <-ctx.Done():
			s.abandon(p)
			return nil, unavailable("read", ctx.Err(), "")
		}
	}
}

// discardStale drops output that arrived while no request was in flight.
func (s *Supervisor) discardStale(p *process) error {
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				s.retire(p)
				return unavailable("write", p.exitDetail(), p.tail.String())
			}
			s.log.Debug("discarding unsolicited classifier output", logger.String("line", string(line)))
		default:
			return nil
		}
	}
}

type classifierError string

func (e classifierError) Error() string { return "classifier error: " + string(e) }
