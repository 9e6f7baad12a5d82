package links

import (
	"time"

	"github.com/sundayezeilo/urlappender/decorate"
)

// Link is one stored URL together with the parameters merged into it.
type Link struct {
	ID           string
	OriginalURL  string
	Parameters   decorate.Params
	DecoratedURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

// Page is one page of a listing. Next is nil when the listing is complete.
type Page struct {
	Links []Link
	Next  *Cursor
}

// NextCursor returns the wire form of Next, or "" at the end of the listing.
func (p Page) NextCursor() string {
	if p.Next == nil {
		return ""
	}
	return p.Next.Encode()
}

// ScanPage is one page of an ordered backing-store scan. NextToken is empty
// once the scan is exhausted.
type ScanPage struct {
	Links     []Link
	NextToken string
}

// RecencyPage is a window of links in cache index order. More reports
// whether links remain past the window.
type RecencyPage struct {
	Links []Link
	More  bool
}

// now returns the current time truncated to the millisecond precision both
// tiers store.
func now(clock func() time.Time) time.Time {
	return clock().UTC().Truncate(time.Millisecond)
}

// nextUpdatedAt returns a timestamp strictly after prev, preferring t.
func nextUpdatedAt(t, prev time.Time) time.Time {
	if floor := prev.Add(time.Millisecond); t.Before(floor) {
		return floor
	}
	return t
}
