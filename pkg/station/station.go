package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fluxorio/carwash/pkg/core/concurrency"
)

// DefaultResetTimeout bounds how long Reset waits for cars and pumps to exit.
const DefaultResetTimeout = 5 * time.Second

// Station owns the waiting area, the four counting resources and every car
// and pump it spawns.
//
// Lifecycle operations (Configure, Start, AddArrival, Stop, Reset) are
// serialized. Counters are lock-free and safe to read from observers.
type Station struct {
	logger       *slog.Logger
	resetTimeout time.Duration

	mu       sync.Mutex // serializes lifecycle operations
	lot      lot
	current  *run
	stopping []*run

	capacity atomic.Int64
	pumps    atomic.Int64
	running  atomic.Bool
	runID    atomic.Pointer[uuid.UUID]

	arrivals  atomic.Int64
	pending   atomic.Int64
	inService atomic.Int64
	serviced  atomic.Int64
	abandoned atomic.Int64
	liveCars  atomic.Int64
	livePumps atomic.Int64

	observers atomic.Pointer[observers]
}

type run struct {
	Run
	group *concurrency.TaskGroup
}

// Option configures a Station.
type Option func(*Station) error

// WithLogger sets the station logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Station) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithResetTimeout bounds how long Reset waits for units to terminate.
func WithResetTimeout(d time.Duration) Option {
	return func(s *Station) error {
		if d <= 0 {
			return &ConfigurationError{Field: "reset timeout", Value: d, Reason: "must be > 0"}
		}
		s.resetTimeout = d
		return nil
	}
}

// WithObserver registers obs for every observer interface it implements.
func WithObserver(obs any) Option {
	return func(s *Station) error {
		return s.Observe(obs)
	}
}

// New creates a stopped station with the given waiting capacity and pump count.
func New(capacity, pumps int, opts ...Option) (*Station, error) {
	if err := validateSize(capacity, pumps); err != nil {
		return nil, err
	}

	s := &Station{
		logger:       slog.Default(),
		resetTimeout: DefaultResetTimeout,
		lot:          newLot(capacity, pumps),
	}
	s.capacity.Store(int64(capacity))
	s.pumps.Store(int64(pumps))
	s.observers.Store(&observers{})

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Observe registers obs for every observer interface it implements.
// Observers are fixed while the station runs.
func (s *Station) Observe(obs any) error {
	if obs == nil {
		return fmt.Errorf("station: observer cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}
	next, ok := s.observers.Load().with(obs)
	if !ok {
		return fmt.Errorf("station: %T implements no observer interface", obs)
	}
	s.observers.Store(next)
	return nil
}

// Configure changes the waiting capacity and pump count. It fails with a
// *ConfigurationError without touching the station if either is invalid, and
// otherwise implies a full Reset.
func (s *Station) Configure(ctx context.Context, capacity, pumps int) error {
	if err := validateSize(capacity, pumps); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}
	if err := s.awaitStopped(ctx); err != nil {
		return err
	}

	s.capacity.Store(int64(capacity))
	s.pumps.Store(int64(pumps))
	s.clear()
	s.logger.Info("station configured", "waiting_capacity", capacity, "pumps", pumps)
	s.notifyReset()
	return nil
}

// Start spawns the pumps and begins accepting arrivals.
func (s *Station) Start(duration ServiceDuration) (Run, error) {
	if err := validateDuration(duration); err != nil {
		return Run{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return Run{}, ErrAlreadyRunning
	}

	r := &run{
		Run: Run{
			ID:              uuid.New(),
			WaitingCapacity: int(s.capacity.Load()),
			Pumps:           int(s.pumps.Load()),
			Service:         duration,
			Started:         time.Now(),
		},
		group: concurrency.NewTaskGroup(context.Background(), s.logger),
	}

	for i := 1; i <= r.Pumps; i++ {
		s.livePumps.Add(1)
		if err := r.group.Go(newPump(i, duration, s.lot, s)); err != nil {
			s.livePumps.Add(-1)
			r.group.Cancel()
			return Run{}, fmt.Errorf("station: start pump %d: %w", i, err)
		}
	}

	s.current = r
	s.runID.Store(&r.ID)
	s.running.Store(true)

	s.logger.Info("station started",
		"run", r.ID,
		"waiting_capacity", r.WaitingCapacity,
		"pumps", r.Pumps,
		"service", duration.String(),
	)
	for _, o := range s.observers.Load().lifecycle {
		s.notify("started", func() { o.OnStarted(r.Run) })
	}
	return r.Run, nil
}

// AddArrival assigns the next car id and spawns the car.
func (s *Station) AddArrival() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return 0, ErrNotRunning
	}

	id := int(s.arrivals.Add(1))
	s.liveCars.Add(1)
	if err := s.current.group.Go(newCar(id, s.lot, s)); err != nil {
		s.liveCars.Add(-1)
		s.arrivals.Add(-1)
		return 0, fmt.Errorf("station: add arrival: %w", err)
	}
	return id, nil
}

// Stop cancels every live car and pump. It does not wait for them and does
// not touch the queue, which stays inspectable until Reset.
func (s *Station) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
}

func (s *Station) stop() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)

	r := s.current
	s.current = nil
	r.group.Cancel()
	s.stopping = append(s.stopping, r)

	s.logger.Info("station stopped", "run", r.ID, "live_units", r.group.Len())
	for _, o := range s.observers.Load().lifecycle {
		s.notify("stopped", func() { o.OnStopped(r.Run) })
	}
}

// Reset stops the station, waits for every unit to terminate, then clears the
// queue, resource permits and counters for the configured capacities.
// If the units do not terminate in time the station is left stopped but not
// reset, and Reset may be retried.
func (s *Station) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	if err := s.awaitStopped(ctx); err != nil {
		return err
	}
	s.clear()
	s.logger.Info("station reset")
	s.notifyReset()
	return nil
}

func (s *Station) notifyReset() {
	for _, o := range s.observers.Load().lifecycle {
		s.notify("reset", func() { o.OnReset() })
	}
}

// awaitStopped waits for every stopped run's units. Caller holds s.mu.
func (s *Station) awaitStopped(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.resetTimeout)
	defer cancel()

	for len(s.stopping) > 0 {
		r := s.stopping[0]
		err := r.group.Wait(ctx)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return fmt.Errorf("station: waiting for run %s: %w", r.ID, err)
		}
		if err != nil {
			s.logger.Warn("unit fault during run", "run", r.ID, "error", err)
		}
		s.stopping = s.stopping[1:]
	}
	return nil
}

// clear reinitializes shared state. Caller holds s.mu and no unit is alive.
func (s *Station) clear() {
	s.lot.reset(int(s.capacity.Load()), int(s.pumps.Load()))
	s.stopping = nil
	s.runID.Store(nil)

	s.arrivals.Store(0)
	s.pending.Store(0)
	s.inService.Store(0)
	s.serviced.Store(0)
	s.abandoned.Store(0)
	s.liveCars.Store(0)
	s.livePumps.Store(0)
}

// IsRunning reports whether the station accepts arrivals.
func (s *Station) IsRunning() bool { return s.running.Load() }

// ArrivalCount is the number of cars added since the last reset.
func (s *Station) ArrivalCount() int { return int(s.arrivals.Load()) }

// ServicedCount is the number of cars that finished service since the last reset.
func (s *Station) ServicedCount() int { return int(s.serviced.Load()) }

// WaitingCount is the current queue length.
func (s *Station) WaitingCount() int { return s.lot.queue.len() }

// WaitingCapacity is the configured size of the waiting area.
func (s *Station) WaitingCapacity() int { return int(s.capacity.Load()) }

// Pumps is the configured number of pumps and bays.
func (s *Station) Pumps() int { return int(s.pumps.Load()) }

// Waiting returns the queued car ids, head first.
func (s *Station) Waiting() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lot.lock()
	defer s.lot.unlock()
	return s.lot.queue.list()
}

// Snapshot is a point-in-time view of the station counters. Fields are read
// independently and may be mutually inconsistent while units are active.
type Snapshot struct {
	RunID           string `json:"run_id,omitempty"`
	Running         bool   `json:"running"`
	WaitingCapacity int    `json:"waiting_capacity"`
	Pumps           int    `json:"pumps"`
	Arrivals        int    `json:"arrivals"`
	Pending         int    `json:"pending"`
	Waiting         int    `json:"waiting"`
	InService       int    `json:"in_service"`
	Serviced        int    `json:"serviced"`
	Abandoned       int    `json:"abandoned"`
	FreeSpaces      int    `json:"free_spaces"`
	FreeBays        int    `json:"free_bays"`
	LiveCars        int    `json:"live_cars"`
	LivePumps       int    `json:"live_pumps"`
}

// Snapshot returns the current counters.
func (s *Station) Snapshot() Snapshot {
	snap := Snapshot{
		Running:         s.running.Load(),
		WaitingCapacity: int(s.capacity.Load()),
		Pumps:           int(s.pumps.Load()),
		Arrivals:        int(s.arrivals.Load()),
		Pending:         int(s.pending.Load()),
		Waiting:         s.lot.queue.len(),
		InService:       int(s.inService.Load()),
		Serviced:        int(s.serviced.Load()),
		Abandoned:       int(s.abandoned.Load()),
		FreeSpaces:      s.lot.space.Available(),
		FreeBays:        s.lot.bays.Available(),
		LiveCars:        int(s.liveCars.Load()),
		LivePumps:       int(s.livePumps.Load()),
	}
	if id := s.runID.Load(); id != nil {
		snap.RunID = id.String()
	}
	return snap
}

// Pending is the number of announced cars still waiting for room.
func (s *Station) Pending() int { return int(s.pending.Load()) }

// InService is the number of cars dequeued and waiting for or occupying a bay.
func (s *Station) InService() int { return int(s.inService.Load()) }

// Abandoned is the number of cars cancelled before entering the queue or
// dropped by a stopped pump.
func (s *Station) Abandoned() int { return int(s.abandoned.Load()) }

// Units returns the task names ("car-3", "pump-1") of every unit that has
// not exited yet, including those of stopped runs still winding down.
func (s *Station) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{}
	for _, r := range s.stopping {
		names = append(names, r.group.Live()...)
	}
	if s.current != nil {
		names = append(names, s.current.group.Live()...)
	}
	sort.Strings(names)
	return names
}

// LiveUnits returns the number of cars and pumps that have not exited yet.
func (s *Station) LiveUnits() (cars, pumps int) {
	return int(s.liveCars.Load()), int(s.livePumps.Load())
}

// notify runs one observer callback; a panicking observer is logged and skipped.
func (s *Station) notify(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panicked", "event", event, "panic", r)
		}
	}()
	fn()
}

// Unit callbacks. They keep the counters, then fan out in registration order.

func (s *Station) arrives(car int) {
	s.pending.Add(1)
	for _, o := range s.observers.Load().arrivals {
		s.notify("arrives", func() { o.OnArrives(car) })
	}
}

func (s *Station) entersQueue(car int) {
	s.pending.Add(-1)
	for _, o := range s.observers.Load().arrivals {
		s.notify("enters_queue", func() { o.OnEntersQueue(car) })
	}
}

func (s *Station) carCancelled(car int, message string) {
	s.pending.Add(-1)
	s.abandoned.Add(1)
	obs := s.observers.Load()
	for _, o := range obs.arrivals {
		s.notify("car_cancelled", func() { o.OnCancelled(message) })
	}
	for _, o := range obs.cancels {
		s.notify("car_cancelled", func() { o.OnCarCancelled(car, message) })
	}
}

func (s *Station) login(pump, car int) {
	s.inService.Add(1)
	for _, o := range s.observers.Load().services {
		s.notify("login", func() { o.OnLogin(pump, car) })
	}
}

func (s *Station) beginsService(pump, car int) {
	for _, o := range s.observers.Load().services {
		s.notify("begins_service", func() { o.OnBeginsService(pump, car) })
	}
}

func (s *Station) finishesService(pump, car int) {
	s.inService.Add(-1)
	s.serviced.Add(1)
	for _, o := range s.observers.Load().services {
		s.notify("finishes_service", func() { o.OnFinishesService(pump, car) })
	}
}

func (s *Station) dropped(pump, car int) {
	s.inService.Add(-1)
	s.abandoned.Add(1)
	s.logger.Debug("car abandoned by stopped pump", "pump", pump, "car", car)
	for _, o := range s.observers.Load().abandons {
		s.notify("abandoned", func() { o.OnAbandoned(pump, car) })
	}
}

func (s *Station) pumpCancelled(pump int, message string) {
	obs := s.observers.Load()
	for _, o := range obs.services {
		s.notify("pump_cancelled", func() { o.OnCancelled(message) })
	}
	for _, o := range obs.cancels {
		s.notify("pump_cancelled", func() { o.OnPumpCancelled(pump, message) })
	}
}

func (s *Station) unitExited(pump bool) {
	if pump {
		s.livePumps.Add(-1)
	} else {
		s.liveCars.Add(-1)
	}
}
