package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

// DefaultBatchSize keeps alert messages under downstream size limits.
const DefaultBatchSize = 5

// Dispatcher batches AlertNow decisions and posts them to the alert channel.
type Dispatcher struct {
	transport chat.Transport
	channelID string
	batchSize int
	spacing   time.Duration
	logger    log.Logger
}

// NewDispatcher creates a dispatcher. batchSize <= 0 falls back to the
// default; spacing is the mandatory pause between batches for downstream
// rate limits.
func NewDispatcher(t chat.Transport, channelID string, batchSize int, spacing time.Duration, logger log.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		transport: t,
		channelID: channelID,
		batchSize: batchSize,
		spacing:   spacing,
		logger:    logger,
	}
}

// Dispatch sends alerts in fixed-size batches, recording each batch's members
// in the store only after its send succeeded so a failed send stays eligible
// for retry on the next sweep. Failed batches are not retried within the run;
// later batches still attempt. Returns alerts sent and batches failed.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []Alert, store *StateStore, now time.Time) (sent, failedBatches int) {
	for start := 0; start < len(alerts); start += d.batchSize {
		if start > 0 && d.spacing > 0 {
			select {
			case <-ctx.Done():
				d.logger.Warn(ctx, "dispatch interrupted by deadline", "remaining", len(alerts)-start)
				return sent, failedBatches
			case <-time.After(d.spacing):
			}
		}

		end := min(start+d.batchSize, len(alerts))
		batch := alerts[start:end]

		if err := d.transport.SendMessage(ctx, d.channelID, formatBatch(batch)); err != nil {
			failedBatches++
			d.logger.Error(ctx, err, "alert batch send failed",
				"channel", d.channelID,
				"batch_size", len(batch),
			)
			continue
		}

		for _, a := range batch {
			store.RecordAlert(a.Key, now)
		}
		sent += len(batch)
	}
	return sent, failedBatches
}

func formatBatch(batch []Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: %d message(s) awaiting a reply\n", len(batch))
	for _, a := range batch {
		b.WriteString(formatAlert(a))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAlert(a Alert) string {
	line := fmt.Sprintf("• <@%s> waiting %s", a.AuthorID, formatAge(a.Age))
	if a.Permalink != "" {
		line += fmt.Sprintf(" (<%s|open>)", a.Permalink)
	}
	if a.Excerpt != "" {
		line += fmt.Sprintf("\n    > %s", a.Excerpt)
	}
	return line
}

// formatAge renders a coarse human age ("45m", "3h10m", "2d4h").
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	default:
		days := int(d.Hours()) / 24
		h := int(d.Hours()) - days*24
		if h == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%dh", days, h)
	}
}
