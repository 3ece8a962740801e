package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/respvalidator/internal/retry"
	"github.com/getmockd/respvalidator/pkg/engineclient"
	"github.com/getmockd/respvalidator/pkg/logging"
	"github.com/getmockd/respvalidator/pkg/supervisor"
	"github.com/getmockd/respvalidator/pkg/validation"
)

// State is the lifecycle state of a Client.
type State int

// Lifecycle states.
const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateErrored:
		return "errored"
	default:
		return "uninitialized"
	}
}

// Options configures Initialise.
type Options struct {
	supervisor.Options

	// ServiceURL connects to an already running service instead of
	// starting one. APISpec is not required in that case.
	ServiceURL string
	// ReadinessPath is the readiness route of ServiceURL.
	// Defaults to validation.DefaultReadinessRoute.
	ReadinessPath string
}

// Client validates responses through the validation service.
// Initialise and Dispose must not be called concurrently.
type Client struct {
	log        *slog.Logger
	httpClient *http.Client

	mu       sync.RWMutex
	state    State
	service  *supervisor.Service
	engine   *engineclient.Client
	port     int
	baseURL  string
	specPath string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client and the service it starts.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHTTPClient sets the HTTP client used to reach the service.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the timeout of each call to the service. A client set
// by WithHTTPClient is copied, never modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

// New creates an uninitialised Client.
func New(opts ...Option) *Client {
	c := &Client{
		log:        logging.Nop(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialise starts the validation service (or connects to ServiceURL)
// and waits until it is ready. It returns the service port.
func (c *Client) Initialise(ctx context.Context, opts Options) (int, error) {
	if opts.ServiceURL == "" && strings.TrimSpace(opts.APISpec) == "" {
		return 0, &validation.ConfigurationError{Option: "spec"}
	}

	if c.Initialised() {
		c.Dispose()
	}
	c.setState(StateInitializing)

	var (
		svc           *supervisor.Service
		baseURL       string
		readinessPath string
		specPath      string
		err           error
	)

	if opts.ServiceURL != "" {
		baseURL = strings.TrimRight(opts.ServiceURL, "/")
		readinessPath = opts.ReadinessPath
		if readinessPath == "" {
			readinessPath = validation.DefaultReadinessRoute
		}
		specPath = opts.APISpec
	} else {
		if opts.Logger == nil {
			opts.Logger = c.log
		}
		svc, err = supervisor.Start(ctx, opts.Options)
		if err != nil {
			return 0, c.fail(err)
		}
		baseURL = svc.URL()
		readinessPath = svc.ReadinessPath()
		specPath = svc.SpecPath()
	}

	eng := engineclient.New(baseURL, engineclient.WithHTTPClient(c.httpClient))
	if err := c.probe(ctx, eng, readinessPath, opts); err != nil {
		if svc != nil {
			_ = svc.Shutdown(context.Background())
		}
		return 0, c.fail(&validation.InitializationError{Reason: "validation service is not ready", Err: err})
	}

	port, err := portOf(baseURL)
	if err != nil {
		if svc != nil {
			_ = svc.Shutdown(context.Background())
		}
		return 0, c.fail(&validation.InitializationError{Err: err})
	}

	c.mu.Lock()
	c.state = StateReady
	c.service = svc
	c.engine = eng
	c.port = port
	c.baseURL = baseURL
	c.specPath = specPath
	c.mu.Unlock()

	c.log.Info("validation client initialised", "url", baseURL, "spec", specPath)
	return port, nil
}

// probe checks readiness once for a started service, or polls a service
// given by URL since it may still be booting.
func (c *Client) probe(ctx context.Context, eng *engineclient.Client, readinessPath string, opts Options) error {
	if opts.ServiceURL == "" {
		return eng.Ready(ctx, readinessPath)
	}
	policy := retry.Policy{MaxAttempts: opts.PollAttempts, Interval: opts.PollInterval}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = supervisor.DefaultPollAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = supervisor.DefaultPollInterval
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		return eng.Ready(ctx, readinessPath)
	})
}

// fail marks the client errored and returns err as an InitializationError.
func (c *Client) fail(err error) error {
	c.setState(StateErrored)
	c.log.Error("failed to initialise validation client", "error", err)

	var initErr *validation.InitializationError
	if errors.As(err, &initErr) {
		return err
	}
	return &validation.InitializationError{Err: err}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Initialised reports whether the client is ready to validate.
func (c *Client) Initialised() bool {
	return c.State() == StateReady
}

// InitialisationErrored reports whether the last Initialise failed.
func (c *Client) InitialisationErrored() bool {
	return c.State() == StateErrored
}

// Port returns the service port, or 0 when not initialised.
func (c *Client) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

// BaseURL returns the service base URL, or "" when not initialised.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SpecPath returns the spec the service compiled.
func (c *Client) SpecPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.specPath
}

// Dispose stops a service started by Initialise and resets the client.
// It is safe to call on a client that was never initialised.
func (c *Client) Dispose() {
	c.mu.Lock()
	svc := c.service
	eng := c.engine
	c.state = StateUninitialized
	c.service = nil
	c.engine = nil
	c.port = 0
	c.baseURL = ""
	c.specPath = ""
	c.mu.Unlock()

	if eng != nil {
		eng.CloseIdleConnections()
	}
	if svc != nil {
		if err := svc.Stop(); err != nil {
			c.log.Warn("failed to stop validation service", "error", err)
		}
	}
}

func (c *Client) readyEngine() (*engineclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady || c.engine == nil {
		return nil, validation.ErrNotInitialized
	}
	return c.engine, nil
}

func portOf(baseURL string) (int, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid service URL %q: %w", baseURL, err)
	}
	if p := u.Port(); p != "" {
		return strconv.Atoi(p)
	}
	switch u.Scheme {
	case "https":
		return 443, nil
	case "http":
		return 80, nil
	}
	return 0, fmt.Errorf("invalid service URL %q", baseURL)
}
