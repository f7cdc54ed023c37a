package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Notifier publishes new encounter IDs through PostgreSQL NOTIFY so that
// clinic-side listeners can pick up finished intakes.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier. A nil Notifier or an empty channel
// turns Notify into a no-op.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	return &Notifier{DB: db, Channel: channel}
}

// Notify sends the encounter ID as the payload on the configured channel.
func (n *Notifier) Notify(ctx context.Context, encounterID string) error {
	if n == nil || n.DB == nil || n.Channel == "" {
		return nil
	}
	channel := pq.QuoteIdentifier(n.Channel)
	_, err := n.DB.ExecContext(ctx, fmt.Sprintf("NOTIFY %s, %s", channel, pq.QuoteLiteral(encounterID)))
	return err
}
