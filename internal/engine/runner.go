package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/era"
	"github.com/dakeena/living-chronicle/internal/pantheon"
	"github.com/dakeena/living-chronicle/internal/population"
)

// ErrRunning is returned by Step while the auto-run loop owns the kernel.
var ErrRunning = errors.New("auto-run in progress")

// Runner drives a kernel. Every access to the kernel goes through its
// mutex, so ticks are serialized and readers see whole days.
type Runner struct {
	Interval time.Duration // base delay between auto-run ticks

	mu     sync.Mutex
	kernel *Kernel
	hub    *Hub

	ctl     sync.Mutex
	running bool
	speed   float64
	stop    chan struct{}
	done    chan struct{}
	lastErr error
}

// NewRunner wraps k. Results of every tick are published to hub.
func NewRunner(k *Kernel, hub *Hub) *Runner {
	return &Runner{
		Interval: time.Second,
		kernel:   k,
		hub:      hub,
		speed:    1.0,
	}
}

// Hub returns the runner's result fan-out.
func (r *Runner) Hub() *Hub { return r.hub }

// Step advances one day. It is refused while auto-run is active.
func (r *Runner) Step(ctx context.Context) (*TickResult, error) {
	if r.Running() {
		return nil, ErrRunning
	}
	return r.tick(ctx)
}

func (r *Runner) tick(ctx context.Context) (*TickResult, error) {
	r.mu.Lock()
	res, err := r.kernel.Tick(ctx)
	r.mu.Unlock()

	if res != nil && r.hub != nil {
		r.hub.Publish(res)
	}
	return res, err
}

// Do runs fn with exclusive access to the kernel.
func (r *Runner) Do(fn func(k *Kernel) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.kernel)
}

// Start begins ticking every Interval/speed until Stop, ctx cancellation or
// a tick error. Calling Start while running only changes the speed.
func (r *Runner) Start(ctx context.Context, speed float64) error {
	if speed <= 0 {
		return errors.New("speed must be positive")
	}

	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.speed = speed
	if r.running {
		return nil
	}

	r.mu.Lock()
	ready := r.kernel.Ready()
	r.mu.Unlock()
	if !ready {
		return ErrNotInitialized
	}

	r.running = true
	r.lastErr = nil
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, r.stop, r.done)
	return nil
}

// Stop halts the auto-run loop and waits for the in-flight tick to finish.
func (r *Runner) Stop() {
	r.ctl.Lock()
	if !r.running {
		r.ctl.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.ctl.Unlock()

	<-done
}

// Running reports whether the auto-run loop is active.
func (r *Runner) Running() bool {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	return r.running
}

// Speed returns the current auto-run multiplier.
func (r *Runner) Speed() float64 {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	return r.speed
}

// Err returns the error that halted the last auto-run, if any.
func (r *Runner) Err() error {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	return r.lastErr
}

func (r *Runner) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	slog.Info("auto-run started", "speed", r.Speed(), "interval", r.Interval)

	for {
		start := time.Now()

		if _, err := r.tick(ctx); err != nil {
			slog.Error("auto-run halted", "error", err)
			r.ctl.Lock()
			r.running = false
			r.lastErr = err
			r.ctl.Unlock()
			return
		}

		wait := time.Duration(float64(r.Interval)/r.Speed()) - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-stop:
			slog.Info("auto-run stopped")
			return
		case <-ctx.Done():
			r.ctl.Lock()
			r.running = false
			r.ctl.Unlock()
			slog.Info("auto-run cancelled")
			return
		case <-time.After(wait):
		}
	}
}

// Snapshot is a consistent, detached copy of the world for readers.
type Snapshot struct {
	Day         int                              `json:"day"`
	Era         era.Era                          `json:"era"`
	DaysInEra   int                              `json:"days_in_era"`
	EraDuration int                              `json:"era_duration"`
	Seed        int64                            `json:"seed"`
	Running     bool                             `json:"running"`
	Speed       float64                          `json:"speed"`
	Citizens    []population.Citizen             `json:"citizens"`
	Factions    []FactionView                    `json:"factions"`
	Gods        []pantheon.God                   `json:"gods"`
	Shrines     [domain.Count]pantheon.Shrine    `json:"shrines"`
	Aggregates  [domain.Count]pantheon.Aggregate `json:"aggregates"`
}

// FactionView is a faction with its derived member count.
type FactionView struct {
	population.Faction
	MemberCount int `json:"member_count"`
}

// Snapshot copies the current state. It fails with ErrNotInitialized
// before the kernel is ready.
func (r *Runner) Snapshot() (*Snapshot, error) {
	running, speed := r.Running(), r.Speed()

	r.mu.Lock()
	defer r.mu.Unlock()

	k := r.kernel
	if !k.Ready() {
		return nil, ErrNotInitialized
	}

	clock := k.Clock()
	pop := k.Population()
	s := &Snapshot{
		Day:         k.Day(),
		Era:         clock.Current,
		DaysInEra:   clock.DaysInEra,
		EraDuration: clock.Duration,
		Seed:        k.Seed(),
		Running:     running,
		Speed:       speed,
		Citizens:    make([]population.Citizen, 0, len(pop.Citizens)),
		Factions:    make([]FactionView, 0, len(pop.Factions)),
		Shrines:     k.Pantheon().Shrines(),
		Aggregates:  pantheon.AggregateBeliefs(pop.Citizens),
	}

	for _, c := range pop.Citizens {
		cp := *c
		if c.FactionID != nil {
			id := *c.FactionID
			cp.FactionID = &id
		}
		s.Citizens = append(s.Citizens, cp)
	}
	for _, f := range pop.Factions {
		fv := FactionView{Faction: *f, MemberCount: len(f.Members)}
		fv.Members = nil
		s.Factions = append(s.Factions, fv)
	}
	for _, g := range k.Pantheon().Living() {
		s.Gods = append(s.Gods, *g)
	}
	for i := range s.Shrines {
		if g := s.Shrines[i].God; g != nil {
			cp := *g
			s.Shrines[i].God = &cp
		}
	}
	return s, nil
}
