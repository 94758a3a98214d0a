package bus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/types"
)

// NotificationStore is the slice of storage the notifier writes to.
type NotificationStore interface {
	StoreNotification(ctx context.Context, n *types.Notification) error
}

// Event describes a notification before it gets an id.
type Event struct {
	Type     string
	WalletID string
	Network  string
	// CreatorID is the copayer that caused the event. Global events carry
	// no creator.
	CreatorID string
	Global    bool
	Data      map[string]any
}

// Notifier persists notifications and then sends them on the bus. Neither
// failure is reported to the caller.
type Notifier struct {
	store  NotificationStore
	bus    Bus
	logger *logrus.Logger
	ticker atomic.Int64
	now    func() time.Time
}

func NewNotifier(store NotificationStore, b Bus, logger *logrus.Logger) *Notifier {
	return &Notifier{
		store:  store,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

func (n *Notifier) build(e Event) *types.Notification {
	now := n.now()
	ticker := n.ticker.Add(1) - 1
	var creator *string
	if !e.Global && e.CreatorID != "" {
		c := e.CreatorID
		creator = &c
	}
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return &types.Notification{
		ID:        types.NotificationID(now, ticker),
		Type:      e.Type,
		Data:      data,
		Ticker:    ticker,
		CreatorID: creator,
		WalletID:  e.WalletID,
		Network:   e.Network,
		CreatedOn: now.Unix(),
	}
}

// Notify stores and publishes the event, returning the notification built.
func (n *Notifier) Notify(ctx context.Context, e Event) *types.Notification {
	notification := n.build(e)
	fields := logrus.Fields{
		"wallet_id": e.WalletID,
		"type":      e.Type,
	}
	n.logger.WithFields(fields).Debug("notification")

	if err := n.store.StoreNotification(ctx, notification); err != nil {
		n.logger.WithFields(fields).WithError(err).Error("fail to store notification")
	}
	if err := n.bus.Send(ctx, notification); err != nil {
		n.logger.WithFields(fields).WithError(err).Warn("fail to send notification")
	}
	return notification
}
