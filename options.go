/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RT-GIT-MANGA/ircu/shared/logfmt"
)

// ServerOption configures a Server at construction time. Options are
// applied in the order given to NewServer, so later options win where
// they conflict (e.g. a second WithLogger replaces the first).
type ServerOption func(*Server) error

// NewServer builds a Server with the given options applied, registers
// the message handlers and warms the message pool (Warmup), starts the
// channel subsystem's Hub, and returns it ready for ListenAndServe.
func NewServer(opts ...ServerOption) (*Server, error) {
	server := newServer()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(server); err != nil {
			return nil, err
		}
	}

	if log == nil {
		Warmup(logrus.New())
	}

	hubLog := log.WithField("component", "hub")
	server.Hub = NewHub(server.Channels, hubLog, HubJobRate, HubJobBurst)
	server.Hub.Run(server.shutdownContext())

	return server, nil
}

// shutdownContext returns the context the server should watch for
// cancellation, defaulting to a context that never cancels on its own
// when no WithGracefulShutdown option was given.
func (server *Server) shutdownContext() context.Context {
	if server.shutdownCtx != nil {
		return server.shutdownCtx
	}
	return context.Background()
}

// WithHostname sets the server's advertised hostname.
func WithHostname(hostname string) ServerOption {
	return func(server *Server) error {
		server.SetHostname(hostname)
		return nil
	}
}

// WithNetwork sets the server's advertised network name.
func WithNetwork(network string) ServerOption {
	return func(server *Server) error {
		server.SetNetwork(network)
		return nil
	}
}

// WithLogger installs logger as the package-level logger used by the
// server, its connections, and the channel subsystem's Hub. It also
// calls Warmup, so passing WithLogger is the normal way a caller gets
// handler registration and message pool warmup for free.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(server *Server) error {
		if logger == nil {
			return nil
		}
		Warmup(logger)
		return nil
	}
}

// WithLogLevel sets the level of the server's logger. It's a no-op if
// no logger has been installed yet; apply it after WithLogger.
func WithLogLevel(level logrus.Level) ServerOption {
	return func(server *Server) error {
		if log == nil {
			return nil
		}
		log.SetLevel(level)
		return nil
	}
}

// WithDefaultLogFormatter installs the shared logfmt.Formatter, the
// same nested-field text formatter used by the Hub's default logger,
// on the server's logger.
func WithDefaultLogFormatter() ServerOption {
	return func(server *Server) error {
		if log == nil {
			return nil
		}
		log.SetFormatter(logfmt.New(
			logfmt.WithFieldsOrder("component", "channel", "nick"),
			logfmt.HideKeys(false),
		))
		return nil
	}
}

// WithUWorldServers marks the given peer names as trusted services
// servers (spec.md §4.9.1), so MODE overrides arriving via those links
// are promoted to a forced HACK(4) rather than left at their ordinary
// badop grade.
func WithUWorldServers(names ...string) ServerOption {
	return func(server *Server) error {
		for _, name := range names {
			server.AddUWorldServer(name)
		}
		return nil
	}
}

// WithServerNumeric sets this server's own number in the numeric-nick
// pair peers use to address its users (spec.md §6). Required before
// any peer link is accepted; each server on the network must be given
// a distinct number out of band.
func WithServerNumeric(n uint32) ServerOption {
	return func(server *Server) error {
		server.SetServerNumeric(n)
		return nil
	}
}

// WithGracefulShutdown arranges for the server's listener to close
// as soon as ctx is cancelled; timeout is logged as the grace period
// and the listener is closed once more after it. Connections already
// accepted are neither waited for nor closed.
func WithGracefulShutdown(ctx context.Context, timeout time.Duration) ServerOption {
	return func(server *Server) error {
		server.shutdownCtx = ctx
		server.shutdownTimeout = timeout
		return nil
	}
}
