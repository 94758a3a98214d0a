package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/contexthelper"
	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/types"
)

// HeightSource reports the current chain height and whether it moved since
// the last refresh. explorer.Cached implements it.
type HeightSource interface {
	RefreshHeight(ctx context.Context) (int64, bool, error)
}

type HistoryResetter interface {
	SoftResetAllTxHistoryCache(ctx context.Context) error
}

type Notifier interface {
	Notify(ctx context.Context, e bus.Event) *types.Notification
}

// SchedulerService polls every network's chain height on a cron schedule.
// A new block invalidates the history caches and is announced with a global
// NewBlock notification keyed by the network name.
type SchedulerService struct {
	spec     string
	networks map[string]HeightSource
	history  HistoryResetter
	notifier Notifier
	logger   *logrus.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	heights map[string]int64
}

func NewSchedulerService(spec string, networks map[string]HeightSource, history HistoryResetter, notifier Notifier, logger *logrus.Logger) *SchedulerService {
	return &SchedulerService{
		spec:     spec,
		networks: networks,
		history:  history,
		notifier: notifier,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger)))),
		heights:  make(map[string]int64),
	}
}

func (s *SchedulerService) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.CheckBlocks(context.Background())
	}); err != nil {
		return fmt.Errorf("fail to schedule block monitor %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"spec":     s.spec,
		"networks": len(s.networks),
	}).Info("block monitor started")
	return nil
}

// Stop halts the schedule; the returned context is done once a running poll
// has finished.
func (s *SchedulerService) Stop() context.Context {
	return s.cron.Stop()
}

// CheckBlocks runs one poll over every network.
func (s *SchedulerService) CheckBlocks(ctx context.Context) {
	names := make([]string, 0, len(s.networks))
	for name := range s.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, network := range names {
		if err := contexthelper.CheckCancellation(ctx); err != nil {
			return
		}
		if err := s.checkNetwork(ctx, network); err != nil {
			s.logger.WithField("network", network).WithError(err).Warn("fail to check chain height")
		}
	}
}

func (s *SchedulerService) checkNetwork(ctx context.Context, network string) error {
	height, changed, err := s.networks[network].RefreshHeight(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	previous := s.heights[network]
	s.heights[network] = height
	s.mu.Unlock()
	// The first observation after startup only sets the baseline.
	if !changed || previous == 0 || previous == height {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"network": network,
		"height":  height,
	}).Info("new block")
	if err := s.history.SoftResetAllTxHistoryCache(ctx); err != nil {
		s.logger.WithField("network", network).WithError(err).Error("fail to reset tx history cache")
	}
	s.notifier.Notify(ctx, bus.Event{
		Type:     types.NotifyNewBlock,
		WalletID: network,
		Network:  network,
		Global:   true,
		Data:     map[string]any{"network": network, "height": height},
	})
	return nil
}

// Height returns the last height seen for network, zero before the first
// poll.
func (s *SchedulerService) Height(network string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heights[network]
}
