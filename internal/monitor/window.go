package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

// maxWindowPages bounds backward paging against channels whose history is
// denser than expected inside the lookback.
const maxWindowPages = 50

// BuildWindow pages the transport backward from now until a short page or a
// page whose oldest message predates the lookback cutoff, then returns the
// in-window messages in chronological ascending order with bot/system
// authored messages excluded.
func BuildWindow(ctx context.Context, t chat.Transport, channelID string, lookback time.Duration, pageSize int, now time.Time) ([]chat.Message, error) {
	cutoff := now.Add(-lookback)

	var window []chat.Message
	beforeID := ""

	for page := 0; page < maxWindowPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgs, err := t.FetchChannelPage(ctx, channelID, beforeID, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page for %s: %w", channelID, err)
		}
		if len(msgs) == 0 {
			break
		}

		// newest-first paging: the page's last message is its oldest
		oldest := msgs[len(msgs)-1]

		for _, m := range msgs {
			if m.Bot || m.CreatedAt.Before(cutoff) {
				continue
			}
			window = append(window, m)
		}

		if len(msgs) < pageSize || oldest.CreatedAt.Before(cutoff) {
			break
		}
		beforeID = oldest.ID
	}

	// Transport order is trusted page-to-page but not within edge cases of
	// the platform; a stable sort restores the chronological guarantee.
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].CreatedAt.Before(window[j].CreatedAt)
	})
	return window, nil
}
