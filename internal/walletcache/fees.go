package walletcache

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/types"
)

// samplePoints lists every confirmation target needed to resolve the fee
// levels, fallbacks included.
func (m *Manager) samplePoints() []int {
	seen := map[int]bool{}
	var points []int
	for _, l := range m.cfg.FeeLevels {
		for p := l.NbBlocks; p <= l.NbBlocks+m.cfg.FeeLevelsFallback; p++ {
			if !seen[p] {
				seen[p] = true
				points = append(points, p)
			}
		}
	}
	sort.Ints(points)
	return points
}

// GetFeeLevels estimates a rate for every fee level. A target the explorer
// cannot estimate falls back to the next FeeLevelsFallback targets and then
// to the level default, with NbBlocks left nil. Rates never increase from one
// level to the next.
func (m *Manager) GetFeeLevels(ctx context.Context, network string) ([]types.FeeLevelValue, error) {
	if network != types.NetworkLivenet && network != types.NetworkTestnet {
		return nil, types.NewClientError("Invalid network")
	}

	var samples map[int]int64
	var sampleErr error
	ex, err := m.explorers.Get(network)
	if err != nil {
		sampleErr = err
	} else {
		samples, sampleErr = ex.EstimateFee(ctx, m.samplePoints())
	}
	if sampleErr != nil {
		m.logger.WithField("network", network).WithError(sampleErr).Error("error estimating fee")
	}

	values := make([]types.FeeLevelValue, 0, len(m.cfg.FeeLevels))
	var failed []int
	for _, level := range m.cfg.FeeLevels {
		v := types.FeeLevelValue{Level: level.Name, FeePerKb: level.DefaultValue}
		if sampleErr == nil {
			for n := level.NbBlocks; n <= level.NbBlocks+m.cfg.FeeLevelsFallback; n++ {
				if rate, ok := samples[n]; ok && rate >= 0 {
					nb := n
					v.FeePerKb = rate
					v.NbBlocks = &nb
					break
				}
				failed = append(failed, n)
			}
		}
		values = append(values, v)
	}
	if len(failed) > 0 {
		entry := m.logger.WithFields(logrus.Fields{"network": network, "targets": failed})
		if network == types.NetworkLivenet {
			entry.Warn("could not compute fee estimation")
		} else {
			entry.Debug("could not compute fee estimation")
		}
	}

	for i := 1; i < len(values); i++ {
		values[i].FeePerKb = min(values[i].FeePerKb, values[i-1].FeePerKb)
	}
	return values, nil
}

// FeePerKbForLevel resolves a named level to its current rate.
func (m *Manager) FeePerKbForLevel(ctx context.Context, network, level string) (int64, error) {
	values, err := m.GetFeeLevels(ctx, network)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		if v.Level == level {
			return v.FeePerKb, nil
		}
	}
	return 0, types.NewClientError("Invalid fee level")
}
