/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/RT-GIT-MANGA/ircu/shared/logfmt"
)

// Hub is the channel subsystem's single-threaded cooperative core
// (spec.md §5): every channel-mutating operation — JOIN, PART, KICK,
// MODE, a burst frame — is submitted as a job and run to
// completion on one goroutine before the next job starts, so the
// state in channelstore.go/membership.go/ban.go never needs its own
// locking. Everything outside the core (the per-connection read/write
// goroutines in connection.go) stays concurrent; they hand work to the
// Hub instead of touching channel state directly.
type Hub struct {
	Channels *ChannelStore

	jobs   chan hubJob
	limit  *rate.Limiter
	log    *logrus.Entry
	wg     *conc.WaitGroup
	cancel context.CancelFunc
}

type hubJob struct {
	run  func()
	done chan struct{}
}

// NewHub creates a Hub backed by store, admitting ratePerSec jobs per
// second on average with bursts of up to burst jobs (a coarse backstop against a single misbehaving
// connection flooding channel operations; legitimate traffic from many
// connections is expected to interleave well under this rate).
func NewHub(store *ChannelStore, log *logrus.Entry, ratePerSec float64, burst int) *Hub {
	if log == nil {
		logger := logrus.New()
		logger.SetFormatter(logfmt.New(
			logfmt.WithFieldsOrder("component", "channel"),
			logfmt.HideKeys(false),
		))
		log = logger.WithField("component", "hub")
	}

	return &Hub{
		Channels: store,
		jobs:     make(chan hubJob, 256),
		limit:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		log:      log,
		wg:       conc.NewWaitGroup(),
	}
}

// Run starts the Hub's event loop goroutine. It returns immediately;
// call Stop (or cancel ctx) to shut it down.
func (h *Hub) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.wg.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-h.jobs:
				job.run()
				close(job.done)
			}
		}
	})
}

// Stop signals the event loop to exit and waits for it to drain.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

// Submit enqueues fn to run on the Hub's single goroutine and blocks
// until it has completed, giving callers synchronous, serialized
// access to channel state without needing their own locks. ctx
// cancellation unblocks the caller (but does not cancel fn once it has
// started running — per spec.md §5, "no suspension points within the
// core": once a job begins it always runs to completion).
func (h *Hub) Submit(ctx context.Context, fn func()) error {
	if err := h.limit.Wait(ctx); err != nil {
		return err
	}

	job := hubJob{run: fn, done: make(chan struct{})}
	select {
	case h.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
