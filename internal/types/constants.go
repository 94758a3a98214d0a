package types

import "time"

const (
	NetworkLivenet = "livenet"
	NetworkTestnet = "testnet"
)

// Defaults used when the configuration leaves a knob unset.
const (
	MaxCopayers               = 15
	MaxKeys                   = 100
	MaxMainAddressGap         = 20
	ScanAddressGap            = 30
	HistoryLimit              = 1001
	HistoryCacheAddressThresh = 100
	ConfirmationsToCache      = 100
	TwoStepBalanceThreshold   = 100
	BackoffOffset             = 10
	BackoffTime               = 600 * time.Second
	DeleteLockTime            = 600 * time.Second
	SessionExpiration         = 3600 * time.Second
	BlockheightCacheTime      = 600 * time.Second
	LockWaitTime              = 5 * time.Second
	LockExecTime              = 40 * time.Second
	RecentWindow              = 24 * time.Hour
	BroadcastedTxsLimit       = 100
	MinFeePerKb               = 0
	MaxFeePerKb               = 1000000
	FeeLevelsFallback         = 2
)

// FeeLevel is a named confirmation target with a default rate used when the
// explorer cannot estimate it.
type FeeLevel struct {
	Name         string `json:"name"`
	NbBlocks     int    `json:"nbBlocks"`
	DefaultValue int64  `json:"defaultValue"`
}

var DefaultFeeLevels = []FeeLevel{
	{Name: "priority", NbBlocks: 2, DefaultValue: 150000},
	{Name: "normal", NbBlocks: 4, DefaultValue: 100000},
	{Name: "economy", NbBlocks: 12, DefaultValue: 50000},
	{Name: "superEconomy", NbBlocks: 24, DefaultValue: 10000},
}

// FeeLevelByName returns the level with the given name.
func FeeLevelByName(levels []FeeLevel, name string) (FeeLevel, bool) {
	for _, l := range levels {
		if l.Name == name {
			return l, true
		}
	}
	return FeeLevel{}, false
}
