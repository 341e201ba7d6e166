package newsletter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"standardthought/internal/models"
)

// GuardTTL is how long a claimed issue stays claimed. It outlives the
// weekly schedule so a late retry of last week's cron cannot resend.
const GuardTTL = 8 * 24 * time.Hour

// Guard records which issues have already gone out. Claim returns false
// when key was claimed before.
type Guard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// IssueKey identifies one weekly issue by ISO week and the set of posts it
// carries, so editing the post set within a week produces a new issue.
func IssueKey(now time.Time, posts []models.RecentPost) string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID.String()
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))

	year, week := now.UTC().ISOWeek()
	return fmt.Sprintf("newsletter:%d-W%02d:%s", year, week, hex.EncodeToString(sum[:])[:16])
}
