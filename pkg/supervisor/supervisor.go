package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/respvalidator/internal/cliconfig"
	"github.com/getmockd/respvalidator/internal/retry"
	"github.com/getmockd/respvalidator/pkg/engineclient"
	"github.com/getmockd/respvalidator/pkg/logging"
	"github.com/getmockd/respvalidator/pkg/validation"
)

// Readiness polling and teardown defaults.
const (
	DefaultPollAttempts    = 20
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultWatchdogTimeout = 10 * time.Second
)

// Mode selects where the validation service runs.
type Mode int

const (
	// ModeInProcess runs the service on goroutines of this process.
	ModeInProcess Mode = iota
	// ModeSubprocess launches "respvalidator serve" as a child process.
	ModeSubprocess
)

func (m Mode) String() string {
	if m == ModeSubprocess {
		return "subprocess"
	}
	return "in-process"
}

// Options configures Start.
type Options struct {
	// APISpec is the path of the OpenAPI document. Required.
	APISpec string
	// Port of the service. Zero falls back to
	// OPENAPI_JSON_RESPONSE_VALIDATOR_PORT, then to an OS-chosen port.
	Port int
	// ExitProcessWhenServiceIsStopped makes Service.Stop exit the process.
	// Nil means true.
	ExitProcessWhenServiceIsStopped *bool
	// Mode selects in-process or subprocess execution.
	Mode Mode
	// Binary is the executable used in subprocess mode. Defaults to
	// RESPVALIDATOR_BIN, then "respvalidator".
	Binary string
	// Host is the interface the service binds to.
	Host string

	// PollAttempts and PollInterval override the readiness polling policy.
	PollAttempts int
	PollInterval time.Duration

	// Logger receives supervisor and in-process service logs.
	Logger *slog.Logger
	// ExitFunc replaces os.Exit when exiting on stop.
	ExitFunc func(code int)
}

// Bool returns a pointer to b, for ExitProcessWhenServiceIsStopped.
func Bool(b bool) *bool {
	return &b
}

// Service is a running, ready validation service.
type Service struct {
	launcher        launcher
	log             *slog.Logger
	exitOnStop      bool
	exit            func(code int)
	watchdogTimeout time.Duration

	mu      sync.Mutex
	stopped bool
	port    int
	url     string
	ready   string
	spec    string
}

// Start launches the validation service and blocks until its readiness
// route answers 202. Every failure after the spec check is returned as a
// *validation.InitializationError.
func Start(ctx context.Context, opts Options) (*Service, error) {
	if strings.TrimSpace(opts.APISpec) == "" {
		return nil, &validation.ConfigurationError{Option: "spec"}
	}

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	port := cliconfig.ResolvePort(opts.Port)

	var l launcher
	switch opts.Mode {
	case ModeSubprocess:
		binary := opts.Binary
		if binary == "" {
			binary = cliconfig.BinaryFromEnv()
		}
		l = newSubprocessLauncher(binary, opts.APISpec, opts.Host, port, log)
	default:
		l = newInProcessLauncher(opts.APISpec, opts.Host, port, log)
	}

	return start(ctx, l, opts, log)
}

func start(ctx context.Context, l launcher, opts Options, log *slog.Logger) (*Service, error) {
	log.Info("starting validation service", "spec", opts.APISpec, "mode", opts.Mode.String())

	if err := l.Start(ctx); err != nil {
		return nil, &validation.InitializationError{Err: err}
	}

	policy := retry.Policy{
		MaxAttempts: opts.PollAttempts,
		Interval:    opts.PollInterval,
		Stop:        l.Err,
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPollAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollInterval
	}

	client := engineclient.New(l.URL(), engineclient.WithTimeout(policy.Interval*2))
	defer client.CloseIdleConnections()

	err := policy.Do(ctx, func(ctx context.Context) error {
		return client.Ready(ctx, l.ReadinessPath())
	})
	if err != nil {
		_ = l.Stop(context.Background())
		log.Error("validation service failed to become ready", "error", err)
		return nil, initializationError(err)
	}

	exitOnStop := opts.ExitProcessWhenServiceIsStopped == nil || *opts.ExitProcessWhenServiceIsStopped
	exit := opts.ExitFunc
	if exit == nil {
		exit = os.Exit
	}

	svc := &Service{
		launcher:        l,
		log:             log,
		exitOnStop:      exitOnStop,
		exit:            exit,
		watchdogTimeout: DefaultWatchdogTimeout,
		port:            l.Port(),
		url:             l.URL(),
		ready:           l.ReadinessPath(),
		spec:            l.SpecPath(),
	}
	log.Info("validation service ready", "url", svc.url, "readiness", svc.ready)
	return svc, nil
}

// initializationError maps a polling failure to an InitializationError.
func initializationError(err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return &validation.InitializationError{Reason: "server did not start", Err: exhausted.Last}
	}
	return &validation.InitializationError{Err: err}
}

// Port returns the service port, or 0 once stopped.
func (s *Service) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// URL returns the service base URL, or "" once stopped.
func (s *Service) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// ReadinessPath returns the HTTP path of the readiness route.
func (s *Service) ReadinessPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SpecPath returns the spec the service compiled.
func (s *Service) SpecPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Stopped reports whether Stop was called.
func (s *Service) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop shuts the service down. Only the first call has an effect.
//
// When exit on stop is enabled, Stop exits the process with status 0 after
// the graceful close, or with status 1 if the close takes longer than the
// watchdog timeout.
func (s *Service) Stop() error {
	if !s.markStopped() {
		return nil
	}

	var watchdog *time.Timer
	if s.exitOnStop {
		watchdog = time.AfterFunc(s.watchdogTimeout, func() {
			s.log.Error("validation service did not stop in time", "timeout", s.watchdogTimeout)
			s.exit(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.watchdogTimeout+time.Second)
	defer cancel()
	err := s.launcher.Stop(ctx)

	if watchdog != nil && watchdog.Stop() {
		s.exit(0)
	}
	return err
}

// Shutdown stops the service without exiting the process, whatever
// ExitProcessWhenServiceIsStopped says. It is meant for tearing down a
// service that never became usable. Later Stop calls are no-ops.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.markStopped() {
		return nil
	}
	return s.launcher.Stop(ctx)
}

// markStopped clears the service state and reports whether this call did it.
func (s *Service) markStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.stopped = true
	s.port = 0
	s.url = ""
	return true
}
