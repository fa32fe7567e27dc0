package watcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/rjeczalik/notify"
	"github.com/sirupsen/logrus"
)

// eventBufferSize bounds how many notifications can queue while the single
// processing goroutine is busy stabilizing or uploading a file. Events
// dropped past this point are recovered by the next directory notification
// or sweep.
const eventBufferSize = 64

// Supervisor owns the watched directories and the single event-processing
// goroutine. Notifications from all directories funnel into one channel, so
// handler invocations are strictly serialized.
type Supervisor struct {
	log    logrus.FieldLogger
	paths  []string
	router *Router

	events chan notify.EventInfo
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor for the given directories.
func NewSupervisor(log logrus.FieldLogger, router *Router, paths []string) *Supervisor {
	return &Supervisor{
		log:    log.WithField("component", "supervisor"),
		paths:  paths,
		router: router,
		done:   make(chan struct{}),
	}
}

// Start registers a non-recursive watch for every directory and launches the
// processing goroutine. Watches are registered before the startup sweep, so
// a file that appears while the sweep runs is queued on the channel rather
// than missed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.events = make(chan notify.EventInfo, eventBufferSize)

	for _, p := range s.paths {
		if err := notify.Watch(p, s.events, notify.All); err != nil {
			notify.Stop(s.events)

			return fmt.Errorf("watching %s: %w", p, err)
		}

		s.log.WithField("dir", p).Info("Watching directory")
	}

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop halts notification delivery and waits for any in-flight event
// handling to finish.
func (s *Supervisor) Stop() {
	s.log.Info("Supervisor stopping")

	notify.Stop(s.events)
	close(s.done)
	s.wg.Wait()

	s.log.Info("Supervisor stopped")
}

// run is the single processing goroutine: startup sweep first, then events
// in delivery order.
func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	// Handlers get a non-cancellable context: an in-progress stability wait,
	// upload, or backoff runs to completion once started. Cancellation only
	// stops the delivery loop; Stop waits for the in-flight handler.
	handlerCtx := context.WithoutCancel(ctx)

	for _, p := range s.paths {
		s.router.SweepDirectory(handlerCtx, p)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ei, ok := <-s.events:
			if !ok {
				return
			}

			s.log.WithFields(logrus.Fields{
				"event": ei.Event().String(),
				"path":  ei.Path(),
			}).Debug("Event detected")

			s.router.HandleEvent(handlerCtx, classify(ei.Path()))
		}
	}
}
