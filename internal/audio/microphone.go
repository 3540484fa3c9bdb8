package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"tadwir/internal/ports"
)

const (
	startupGrace   = 250 * time.Millisecond
	interruptGrace = 1200 * time.Millisecond
)

// Microphone captures 16-bit little-endian PCM from the default input device
// by running ffmpeg and reading its stdout.
type Microphone struct {
	command string
	logger  *zap.Logger
}

func NewMicrophone(command string, logger *zap.Logger) *Microphone {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Microphone{command: command, logger: logger.Named("microphone")}
}

// Start launches ffmpeg and waits briefly so that a missing device or a
// denied permission surfaces as a start error instead of an empty stream.
func (m *Microphone) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withPlatformDefaults(cfg, runtime.GOOS)

	cmd := exec.CommandContext(ctx, m.command, captureArgs(cfg)...)
	c := &capture{logger: m.logger, done: make(chan struct{})}
	cmd.Stderr = &c.stderr

	// An explicit pipe keeps the read end open after Wait, so audio that
	// ffmpeg flushes on interrupt can still be drained.
	stdout, sink, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	cmd.Stdout = sink
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = sink.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	_ = sink.Close()
	c.stdout = stdout
	c.process = cmd.Process
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()

	select {
	case <-c.done:
		_ = stdout.Close()
		if c.waitErr != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", c.waitErr, trimOutput(c.stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(startupGrace):
	}

	m.logger.Debug("capture started",
		zap.String("format", cfg.InputFormat),
		zap.String("device", cfg.InputDevice),
		zap.Int("sample_rate", cfg.SampleRate),
	)
	return c, nil
}

func withPlatformDefaults(cfg ports.AudioConfig, goos string) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		switch goos {
		case "darwin":
			cfg.InputFormat = "avfoundation"
		case "windows":
			cfg.InputFormat = "dshow"
		default:
			cfg.InputFormat = "pulse"
		}
	}
	if cfg.InputDevice == "" {
		switch goos {
		case "darwin":
			cfg.InputDevice = ":0"
		case "windows":
			cfg.InputDevice = "audio=default"
		default:
			cfg.InputDevice = "default"
		}
	}
	return cfg
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// capture is one running ffmpeg process. stderr and waitErr are only read
// after done is closed.
type capture struct {
	stdout  *os.File
	stderr  bytes.Buffer
	process *os.Process
	logger  *zap.Logger

	done    chan struct{}
	waitErr error

	stopOnce  sync.Once
	abortOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (c *capture) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

// Stop interrupts ffmpeg and returns at once. ffmpeg flushes what it has
// captured and exits, so Read ends with io.EOF; a process that ignores the
// interrupt is killed after interruptGrace.
func (c *capture) Stop() error {
	c.stopOnce.Do(func() {
		if err := c.process.Signal(os.Interrupt); err != nil {
			// Interrupt is not deliverable on every platform.
			c.kill()
			return
		}
		go func() {
			select {
			case <-c.done:
			case <-time.After(interruptGrace):
				c.logger.Debug("ffmpeg ignored interrupt")
				c.kill()
			}
		}()
	})
	return nil
}

// Abort kills ffmpeg and closes the pipe; pending reads fail with
// os.ErrClosed and buffered audio is dropped.
func (c *capture) Abort() error {
	c.abortOnce.Do(func() {
		c.kill()
		if err := c.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			c.logger.Debug("close ffmpeg stdout", zap.Error(err))
		}
	})
	return nil
}

// Close stops capture if needed, waits for ffmpeg to exit, and reports any
// failure other than the exit status an interrupt produces.
func (c *capture) Close() error {
	c.closeOnce.Do(func() {
		_ = c.Stop()
		<-c.done
		if err := c.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			c.closeErr = err
		}
		if err := ignoreExitStatus(c.waitErr); err != nil {
			c.closeErr = err
		}
		if c.closeErr != nil && c.stderr.Len() > 0 {
			c.closeErr = fmt.Errorf("%w: %s", c.closeErr, trimOutput(c.stderr.String()))
		}
	})
	return c.closeErr
}

func (c *capture) kill() {
	if err := c.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Debug("kill ffmpeg", zap.Error(err))
	}
}

// ignoreExitStatus treats a non-zero exit as a normal stop; ffmpeg exits
// non-zero when interrupted.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(output string) string {
	return string(bytes.TrimSpace([]byte(output)))
}
