package tor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Mode selects how directory requests reach the network.
type Mode int

const (
	// ModeDirect uses the default transport without Tor.
	ModeDirect Mode = iota
	// ModeExternal uses an already running SOCKS5 proxy.
	ModeExternal
	// ModeEmbedded starts a daemon through tornago.
	ModeEmbedded
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeExternal:
		return "external"
	case ModeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// Options describes the connection a Session should provide.
type Options struct {
	Mode           Mode
	ProxyAddress   string
	Timeout        time.Duration
	StartupTimeout time.Duration
	Logger         *slog.Logger
}

// Session owns the HTTP client used for directory requests and whatever
// daemon was started to serve it.
type Session struct {
	mode     Mode
	client   *http.Client
	embedded *EmbeddedTor
}

// Connect prepares a Session for opts.Mode.
//
// For ModeExternal the proxy is probed first so that a missing tor service
// is reported before a long directory download is attempted.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Mode {
	case ModeDirect:
		return &Session{mode: ModeDirect, client: &http.Client{Timeout: opts.Timeout}}, nil

	case ModeExternal:
		c, err := NewClient(opts.ProxyAddress, opts.Timeout)
		if err != nil {
			return nil, err
		}
		if status := c.CheckConnection(ctx); status != ProxyStatusOK {
			return nil, fmt.Errorf("failed to use Tor proxy %s: %w", opts.ProxyAddress, status.Err())
		}
		logger.Debug("using external tor proxy", "proxy", opts.ProxyAddress)
		return &Session{mode: ModeExternal, client: c.NewHTTPClient()}, nil

	case ModeEmbedded:
		embedOpts := []EmbeddedTorOption{WithEmbeddedLogger(logger)}
		if opts.StartupTimeout > 0 {
			embedOpts = append(embedOpts, WithStartupTimeout(opts.StartupTimeout))
		}
		e := NewEmbeddedTor(embedOpts...)
		if err := e.Start(ctx); err != nil {
			return nil, err
		}
		c, err := e.NewClient(opts.Timeout)
		if err != nil {
			_ = e.Stop() //nolint:errcheck // Best effort cleanup
			return nil, err
		}
		return &Session{mode: ModeEmbedded, client: c.NewHTTPClient(), embedded: e}, nil

	default:
		return nil, fmt.Errorf("unknown tor mode %d", opts.Mode)
	}
}

// Mode returns how the session reaches the network.
func (s *Session) Mode() Mode {
	return s.mode
}

// HTTPClient returns the client for directory requests.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Close stops the embedded daemon, if one was started.
func (s *Session) Close() error {
	if s.embedded == nil {
		return nil
	}
	return s.embedded.Stop()
}
