package pty

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes a Manager. Zero fields fall back to DefaultConfig.
type Config struct {
	ReadBufferSize int
	ReplayBytes    int
	HistoryLines   int
	// ExitGrace bounds how long the reader waits for an exit status after
	// EOF, and how long Close waits for the child to be reaped.
	ExitGrace time.Duration
	// Defaults are applied to every Create before the resolver runs.
	Defaults Options
}

func DefaultConfig() Config {
	return Config{
		ReadBufferSize: 4096,
		ReplayBytes:    100 * 1024,
		HistoryLines:   500,
		ExitGrace:      500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.ReplayBytes < 0 {
		c.ReplayBytes = 0
	} else if c.ReplayBytes == 0 {
		c.ReplayBytes = d.ReplayBytes
	}
	if c.HistoryLines <= 0 {
		c.HistoryLines = d.HistoryLines
	}
	if c.ExitGrace <= 0 {
		c.ExitGrace = d.ExitGrace
	}
	return c
}

// Info describes a live terminal.
type Info struct {
	TerminalID  string            `json:"terminal_id"`
	Shell       string            `json:"shell"`
	Cwd         string            `json:"cwd"`
	Environment map[string]string `json:"environment"`
	Size        Size              `json:"size"`
	Pid         int               `json:"pid"`
	CreatedAt   time.Time         `json:"created_at"`
	IsRunning   bool              `json:"is_running"`
}

// Option configures a Manager.
type Option func(*Manager)

func WithStarter(s Starter) Option { return func(m *Manager) { m.starter = s } }

func WithResolver(r ShellResolver) Option { return func(m *Manager) { m.resolver = r } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithRecorder(r Recorder) Option { return func(m *Manager) { m.recorder = r } }

func WithConfig(c Config) Option { return func(m *Manager) { m.cfg = c } }

// Manager owns every terminal created through it. All of its methods are
// safe for concurrent use.
type Manager struct {
	registry *Registry
	events   chan<- Event

	starter  Starter
	resolver ShellResolver
	logger   *zap.Logger
	recorder Recorder
	cfg      Config

	wg sync.WaitGroup

	// lifeMu orders registration against CloseAll. A session is either
	// registered before closed is set or never registered at all.
	lifeMu    sync.Mutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
}

// NewManager returns a Manager that delivers the events of all its
// terminals on events. The caller owns the channel and must keep draining
// it; a full channel pauses the readers.
func NewManager(events chan<- Event, opts ...Option) *Manager {
	m := &Manager{
		registry: NewRegistry(),
		events:   events,
		starter:  NewStarter(),
		resolver: DefaultShellResolver(),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		cfg:      DefaultConfig(),
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg = m.cfg.withDefaults()
	return m
}

// Create starts a new shell on a fresh PTY and returns its id.
func (m *Manager) Create(ctx context.Context, opts Options) (string, error) {
	if m.isClosed() {
		return "", fmt.Errorf("%w: %w", ErrSetup, ErrManagerClosed)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSetup, err)
	}

	opts = opts.merge(m.cfg.Defaults)
	size := opts.size()
	if !size.valid() {
		return "", fmt.Errorf("%w: %w: %dx%d", ErrSetup, ErrInvalidSize, size.Rows, size.Cols)
	}

	shell := m.resolver.Resolve(opts.Shell)
	args := shellArgs(shell)

	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%w: working directory: %w", ErrSetup, err)
		}
		cwd = wd
	}

	cmd := exec.Command(shell, args...)
	cmd.Dir = cwd
	cmd.Env = buildEnv(os.Environ(), opts.Env, os.Getenv("PATH"))

	conn, proc, err := m.starter.Start(cmd, size)
	if err != nil {
		return "", fmt.Errorf("%w: start %s: %w", ErrSetup, shell, err)
	}

	s := &Session{
		id:        uuid.NewString(),
		shell:     shell,
		args:      args,
		cwd:       cwd,
		env:       envMap(cmd.Env),
		createdAt: time.Now(),
		conn:      conn,
		proc:      proc,
		size:      size,
		history:   newLineHistory(m.cfg.HistoryLines, opts.History),
		replay:    newReplayBuffer(m.cfg.ReplayBytes),
		shutdown:  make(chan struct{}),
		exited:    make(chan struct{}),
	}

	go s.waitLoop()

	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		s.release(m.cfg.ExitGrace)
		return "", fmt.Errorf("%w: %w", ErrSetup, ErrManagerClosed)
	}
	m.registry.Insert(s)
	m.wg.Add(1)
	m.lifeMu.Unlock()

	m.recorder.TerminalStarted()
	go m.readLoop(s)

	m.logger.Info("terminal created",
		zap.String("terminal_id", s.id),
		zap.String("shell", shell),
		zap.String("cwd", cwd),
		zap.Int("pid", proc.Pid()),
		zap.Uint16("rows", size.Rows),
		zap.Uint16("cols", size.Cols),
	)
	return s.id, nil
}

// Write sends data to the terminal's input. The whole buffer is written
// before any other writer to the same terminal proceeds.
func (m *Manager) Write(id string, data []byte) error {
	s, ok := m.registry.Get(id)
	if !ok {
		return notFound(id)
	}
	n, err := s.write(data)
	m.recorder.BytesWritten(n)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, id, err)
	}
	return nil
}

// Resize changes the terminal's window size.
func (m *Manager) Resize(id string, size Size) error {
	if !size.valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.Rows, size.Cols)
	}
	s, ok := m.registry.Get(id)
	if !ok {
		return notFound(id)
	}
	if err := s.resize(size); err != nil {
		return fmt.Errorf("%w: resize %s: %w", ErrIO, id, err)
	}
	m.logger.Debug("terminal resized",
		zap.String("terminal_id", id),
		zap.Uint16("rows", size.Rows),
		zap.Uint16("cols", size.Cols),
	)
	return nil
}

// Close terminates the terminal and releases its PTY. No event is emitted
// for a terminal ended by Close unless its reader had already observed the
// end on its own.
func (m *Manager) Close(id string) error {
	s, ok := m.registry.Remove(id)
	if !ok {
		return notFound(id)
	}
	if s.ended.CompareAndSwap(false, true) {
		m.recorder.TerminalEnded(EndClosed)
		m.logger.Info("terminal closed", zap.String("terminal_id", id))
	}
	s.release(m.cfg.ExitGrace)
	return nil
}

// CloseAll closes every terminal and refuses further creates. It waits for
// the readers to stop or for ctx to end.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.lifeMu.Lock()
	m.closed = true
	m.lifeMu.Unlock()
	m.closeOnce.Do(func() { close(m.closing) })

	for _, s := range m.registry.List() {
		_ = m.Close(s.id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) isClosed() bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.closed
}

func (m *Manager) Info(id string) (Info, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return Info{}, notFound(id)
	}
	return m.info(s), nil
}

func (m *Manager) info(s *Session) Info {
	env := make(map[string]string, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return Info{
		TerminalID:  s.id,
		Shell:       s.shell,
		Cwd:         s.cwd,
		Environment: env,
		Size:        s.currentSize(),
		Pid:         s.proc.Pid(),
		CreatedAt:   s.createdAt,
		IsRunning:   s.running(),
	}
}

// List describes every live terminal, oldest first.
func (m *Manager) List() []Info {
	sessions := m.registry.List()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, m.info(s))
	}
	return out
}

// History returns the input lines submitted to the terminal, oldest first.
func (m *Manager) History(id string) ([]string, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return nil, notFound(id)
	}
	return s.history.snapshot(), nil
}

// Cwd returns the shell's current working directory. Where the platform
// cannot report it, the directory the terminal was started in is returned.
func (m *Manager) Cwd(id string) (string, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return "", notFound(id)
	}
	if dir, err := processCwd(s.proc.Pid()); err == nil && dir != "" {
		return dir, nil
	}
	return s.cwd, nil
}

// Replay returns the most recent output of the terminal.
func (m *Manager) Replay(id string) ([]byte, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return nil, notFound(id)
	}
	return s.replay.snapshot(), nil
}

func (m *Manager) Len() int { return m.registry.Len() }
