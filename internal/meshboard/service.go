package meshboard

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	"github.com/danmuck/meshboard/internal/link"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/power"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/radio"
	"github.com/danmuck/meshboard/internal/radio/simradio"
	"github.com/danmuck/meshboard/internal/router"
	"github.com/danmuck/meshboard/internal/scheduler"
	"github.com/danmuck/meshboard/internal/store"
	"github.com/danmuck/meshboard/internal/web"
)

// simDevicePath is where the simulator presents its radio.
const simDevicePath = "/dev/meshboard-sim0"

// Service runs one board node.
type Service struct {
	cfg     ServiceConfig
	driver  radio.Driver
	scanner radio.Scanner
	probe   power.Probe
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return &Service{cfg: cfg}
}

// WithRadio installs a radio driver. A nil scanner scans the configured port patterns.
func (s *Service) WithRadio(driver radio.Driver, scanner radio.Scanner) *Service {
	s.driver = driver
	s.scanner = scanner
	return s
}

// WithPowerProbe overrides the probe selected by configuration.
func (s *Service) WithPowerProbe(p power.Probe) *Service {
	s.probe = p
	return s
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs every task until ctx ends or one task fails. Shutdown waits for
// the tasks, then pending deferred sends, then releases the link and store.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	driver, scanner, err := s.selectRadio()
	if err != nil {
		return err
	}

	notes, err := store.Open(s.cfg.DBPath, store.Options{MaxNotes: s.cfg.MaxNotes})
	if err != nil {
		return err
	}
	defer func() {
		if err := notes.Close(); err != nil {
			logs.Warnf("meshboard.Service.Serve close store err=%v", err)
		}
	}()
	if n, err := notes.ResetSending(ctx); err != nil {
		return err
	} else if n > 0 {
		logs.Infof("meshboard.Service.Serve requeued %d notes left in Sending", n)
	}

	rel := s.cfg.reliability()
	bus := events.NewBus()
	sess := link.NewSession(s.cfg.BoardChannel, s.cfg.TxMinSpacing)

	g, gctx := errgroup.WithContext(ctx)
	deferred := session.NewDeferred(gctx)
	defer deferred.Close()

	rt := router.New(router.Config{
		QueueSize:       router.DefaultQueueSize,
		Ack:             rel.Ack,
		Followup:        rel.Followup,
		LegacyFollowups: s.cfg.LegacyFollowups,
	}, sess, notes, deferred, bus)
	mgr := link.NewManager(s.cfg.linkConfig(), sess, driver, scanner, s.powerProbe(), bus, rt.Enqueue)
	sched := scheduler.New(scheduler.Config{Interval: s.cfg.SendInterval, AckTimeout: rel.AckTimeout}, sess, notes, bus)
	svc := board.NewService(s.cfg.boardConfig(rel), notes, sess, deferred, bus)
	srv := web.New(web.Config{
		Addr:        s.cfg.HTTPAddr,
		CORSOrigins: s.cfg.CORSOrigins,
		AdminToken:  s.cfg.AdminToken,
	}, svc, mgr, bus)

	logs.Infof("meshboard.Service.Serve start board=%q driver=%q http=%q", s.cfg.BoardChannel, s.cfg.Driver, s.cfg.HTTPAddr)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	deferred.Close()
	logs.Infof("meshboard.Service.Serve stopped err=%v", err)
	return err
}

func (s *Service) selectRadio() (radio.Driver, radio.Scanner, error) {
	if s.driver != nil {
		scanner := s.scanner
		if scanner == nil {
			scanner = radio.NewGlobScanner(s.cfg.PortPatterns)
		}
		return s.driver, scanner, nil
	}
	switch s.cfg.Driver {
	case DriverSim:
		sim := simradio.New(
			radio.Channel{Index: 0, Name: "LongFast"},
			radio.Channel{Index: 1, Name: s.cfg.BoardChannel},
		)
		sim.Plug(simDevicePath)
		return sim, sim, nil
	default:
		return nil, nil, fmt.Errorf("%w: driver %q is not built in; install one with WithRadio", ErrInvalidConfig, s.cfg.Driver)
	}
}

func (s *Service) powerProbe() power.Probe {
	if s.probe != nil {
		return s.probe
	}
	if s.cfg.PowerProbe == ProbeVcgencmd {
		return power.NewVcgencmd()
	}
	return power.AlwaysNormal{}
}
