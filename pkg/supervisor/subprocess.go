package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// urlLineTimeout bounds the wait for the subprocess to print its URLs.
const urlLineTimeout = 10 * time.Second

// stderrLimit caps the subprocess stderr kept for diagnostics.
const stderrLimit = 8 << 10

// subprocessLauncher runs "<binary> serve" and reads the bound URLs from
// the first two lines of its stdout.
type subprocessLauncher struct {
	binary string
	spec   string
	host   string
	port   int
	log    *slog.Logger

	cmd    *exec.Cmd
	stderr *tailBuffer
	done   chan struct{}

	mu            sync.RWMutex
	baseURL       string
	readinessPath string
	boundPort     int
	exitErr       error
}

func newSubprocessLauncher(binary, spec, host string, port int, log *slog.Logger) *subprocessLauncher {
	return &subprocessLauncher{
		binary: binary,
		spec:   spec,
		host:   host,
		port:   port,
		log:    log.With("component", "subprocess"),
		stderr: &tailBuffer{limit: stderrLimit},
	}
}

func (l *subprocessLauncher) Start(ctx context.Context) error {
	args := []string{
		"serve",
		"--spec", l.spec,
		"--port", strconv.Itoa(l.port),
		"--print-url",
	}
	if l.host != "" {
		args = append(args, "--host", l.host)
	}

	//nolint:gosec // G204: the binary is chosen by the caller
	cmd := exec.Command(l.binary, args...)
	cmd.Stderr = l.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open subprocess stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.binary, err)
	}
	l.cmd = cmd
	l.log.Debug("subprocess started", "pid", cmd.Process.Pid, "args", args)

	lines := make(chan []string, 1)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		scanner := bufio.NewScanner(stdout)
		var got []string
		for len(got) < 2 && scanner.Scan() {
			got = append(got, strings.TrimSpace(scanner.Text()))
		}
		lines <- got
		// Keep the pipe drained so the child never blocks on stdout.
		_, _ = io.Copy(io.Discard, stdout)
	}()

	var got []string
	select {
	case got = <-lines:
	case <-ctx.Done():
		l.kill(drained)
		return ctx.Err()
	case <-time.After(urlLineTimeout):
		l.kill(drained)
		return errors.New("timed out waiting for the service URL")
	}

	l.done = make(chan struct{})
	go l.wait(drained)

	if len(got) < 2 {
		<-l.done
		return fmt.Errorf("service exited before printing its URL: %w", l.Err())
	}
	return l.setURLs(got[0], got[1])
}

func (l *subprocessLauncher) setURLs(base, readiness string) error {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return fmt.Errorf("invalid service URL %q", base)
	}
	readinessURL, err := url.Parse(readiness)
	if err != nil {
		return fmt.Errorf("invalid readiness URL %q", readiness)
	}
	_, portStr, err := net.SplitHostPort(baseURL.Host)
	if err != nil {
		return fmt.Errorf("invalid service URL %q: %w", base, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid service port %q", portStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.baseURL = strings.TrimRight(base, "/")
	l.readinessPath = readinessURL.Path
	l.boundPort = port
	return nil
}

// wait reaps the child once its stdout reached EOF.
func (l *subprocessLauncher) wait(drained <-chan struct{}) {
	<-drained
	err := l.cmd.Wait()
	if err == nil {
		err = errors.New("process exited")
	}
	if tail := strings.TrimSpace(l.stderr.String()); tail != "" {
		err = fmt.Errorf("%w: %s", err, tail)
	}
	l.mu.Lock()
	l.exitErr = fmt.Errorf("validation service stopped: %w", err)
	l.mu.Unlock()
	close(l.done)
}

// kill ends the child and reaps it once stdout reached EOF.
func (l *subprocessLauncher) kill(drained <-chan struct{}) {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	_ = l.cmd.Process.Kill()
	<-drained
	_ = l.cmd.Wait()
}

func (l *subprocessLauncher) URL() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseURL
}

func (l *subprocessLauncher) Port() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.boundPort
}

func (l *subprocessLauncher) ReadinessPath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.readinessPath
}

// SpecPath returns the caller's spec; the prepared copy belongs to the child.
func (l *subprocessLauncher) SpecPath() string {
	return l.spec
}

func (l *subprocessLauncher) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exitErr
}

// Stop interrupts the child and kills it if it has not exited when ctx ends.
func (l *subprocessLauncher) Stop(ctx context.Context) error {
	if l.cmd == nil || l.done == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	default:
	}

	if err := l.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = l.cmd.Process.Kill()
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		_ = l.cmd.Process.Kill()
		<-l.done
		return fmt.Errorf("validation service did not stop gracefully: %w", ctx.Err())
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
