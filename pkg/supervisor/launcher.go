package supervisor

import (
	"context"
	"log/slog"

	"github.com/getmockd/respvalidator/pkg/engine"
)

// launcher runs one instance of the validation service.
type launcher interface {
	// Start returns once the service is listening.
	Start(ctx context.Context) error
	URL() string
	Port() int
	ReadinessPath() string
	SpecPath() string
	// Err reports an asynchronous failure such as a spec compilation
	// error or an exited subprocess.
	Err() error
	Stop(ctx context.Context) error
}

// inProcessLauncher runs the service on a goroutine of this process.
type inProcessLauncher struct {
	srv *engine.Server
}

func newInProcessLauncher(spec, host string, port int, log *slog.Logger) *inProcessLauncher {
	return &inProcessLauncher{
		srv: engine.NewServer(engine.Config{
			SpecPath: spec,
			Host:     host,
			Port:     port,
		}, engine.WithLogger(log.With("component", "engine"))),
	}
}

func (l *inProcessLauncher) Start(context.Context) error { return l.srv.Start() }
func (l *inProcessLauncher) URL() string                 { return l.srv.URL() }
func (l *inProcessLauncher) Port() int                   { return l.srv.Port() }
func (l *inProcessLauncher) ReadinessPath() string       { return l.srv.ReadinessPath() }
func (l *inProcessLauncher) SpecPath() string            { return l.srv.SpecPath() }
func (l *inProcessLauncher) Err() error                  { return l.srv.Err() }
func (l *inProcessLauncher) Stop(ctx context.Context) error {
	return l.srv.Stop(ctx)
}
