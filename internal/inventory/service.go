package inventory

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/inventory-core/internal/infrastructure/logging"
)

// Persister writes a validated check-in. *Engine is the production implementation.
type Persister interface {
	Persist(ctx context.Context, c CheckIn) (Receipt, error)
}

// Event describes a committed check-in handed to sinks.
type Event struct {
	CheckIn CheckIn
	Receipt Receipt
}

// Sink receives accepted check-ins after commit. A sink error is logged
// and never changes the ingest outcome.
type Sink interface {
	CheckInAccepted(ctx context.Context, ev Event) error
}

// Service is the single entry point for check-ins from every transport.
// It is safe for concurrent use and holds no per-request state.
type Service struct {
	persister Persister
	logger    *logging.Logger
	debug     bool
	sinks     []Sink

	pending sync.WaitGroup
}

// NewService wires validation, persistence and sinks together.
// When debug is set every accepted payload is logged at info level.
func NewService(persister Persister, logger *logging.Logger, debug bool, sinks ...Sink) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		persister: persister,
		logger:    logger,
		debug:     debug,
		sinks:     sinks,
	}
}

// Ingest validates c, persists it and notifies the sinks.
//
// The error is a *ValidationError or a *PersistenceError, both already
// logged with full detail. Callers outside the process must only see
// generic text. A failed call leaves the Service fully usable.
func (s *Service) Ingest(ctx context.Context, raw CheckIn) (Receipt, error) {
	c, err := Validate(raw)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.logger.Warn("check-in rejected",
				"laptop_serial", raw.LaptopSerial,
				"fields", ve.Fields(),
				"error", err,
			)
		}
		return Receipt{}, err
	}

	if s.debug {
		s.logger.Info("check-in received",
			"laptop_serial", c.LaptopSerial,
			"hostname", c.Hostname,
			"ip_address", c.IPAddress,
			"logged_in_user", deref(c.LoggedInUser),
			"timestamp_utc", c.TimestampUTC,
			"drives", c.Drives,
			"drive_devices", displayDeviceIDs(c.Drives),
		)
	} else {
		s.logger.Debug("check-in received", "laptop_serial", c.LaptopSerial)
	}

	receipt, err := s.persister.Persist(ctx, c)
	if err != nil {
		attrs := []any{"laptop_serial", c.LaptopSerial, "busy", IsBusy(err), "error", err}
		var pe *PersistenceError
		if errors.As(err, &pe) {
			attrs = append(attrs, "op", pe.Op)
		}
		s.logger.Error("check-in persistence failed", attrs...)
		return Receipt{}, err
	}

	s.notify(ctx, Event{CheckIn: c, Receipt: receipt})
	return receipt, nil
}

// notify hands ev to every sink in the background so a slow broker or
// time-series server cannot hold up the caller.
func (s *Service) notify(ctx context.Context, ev Event) {
	if len(s.sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		for _, sink := range s.sinks {
			if err := sink.CheckInAccepted(ctx, ev); err != nil {
				s.logger.Warn("check-in sink failed",
					"laptop_serial", ev.CheckIn.LaptopSerial,
					"history_id", ev.Receipt.HistoryID,
					"error", err,
				)
			}
		}
	}()
}

// Wait blocks until every pending sink notification has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func displayDeviceIDs(drives []Drive) []string {
	ids := make([]string, len(drives))
	for i, d := range drives {
		ids[i] = d.DisplayDeviceID()
	}
	return ids
}
