package frontier

import (
	"github.com/nao1215/warcrawl/internal/model"
)

// DefaultSlack is how far past the depth budget the known-URL count may grow
// before new links are dropped.
const DefaultSlack = 10_000

// compactThreshold is the number of consumed queue slots after which the
// backing slice is compacted.
const compactThreshold = 4096

// LinkFilter decides whether a same-domain URL is worth crawling.
type LinkFilter func(model.URL) bool

// AcceptAll is the default link filter.
func AcceptAll(model.URL) bool { return true }

// Blocklist rejects URLs that must never be crawled.
type Blocklist interface {
	IsURLBlocked(u model.URL) bool
}

// Frontier is the per-domain crawl state: a FIFO queue of URLs still to
// fetch, the set of URL hashes already seen, and the policy deciding what
// may join the queue.
//
// A Frontier belongs to exactly one crawl attempt and is not safe for
// concurrent use.
type Frontier struct {
	// root is the root document of the domain.
	root model.URL

	// queue holds pending URLs; entries before head are consumed.
	queue []model.URL
	head  int

	// known maps URL hash to visited flag. Presence means known.
	known map[uint64]bool

	visitedCount int

	// depth is the visit budget.
	depth int

	// slack is the allowance above depth for known URLs.
	slack int

	filter          LinkFilter
	blocklist       Blocklist
	preferredScheme string
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithSlack sets the known-URL allowance above the depth budget.
func WithSlack(n int) Option {
	return func(f *Frontier) {
		if n >= 0 {
			f.slack = n
		}
	}
}

// WithBlocklist sets the URL blocklist consulted on every enqueue.
func WithBlocklist(b Blocklist) Option {
	return func(f *Frontier) {
		f.blocklist = b
	}
}

// WithLinkFilter sets the initial link filter.
func WithLinkFilter(filter LinkFilter) Option {
	return func(f *Frontier) {
		f.SetLinkFilter(filter)
	}
}

// New creates a frontier for the domain of root. The scheme of root becomes
// the preferred protocol.
func New(root model.URL, opts ...Option) *Frontier {
	f := &Frontier{
		root:            root.Root(),
		known:           make(map[uint64]bool),
		slack:           DefaultSlack,
		filter:          AcceptAll,
		preferredScheme: root.Scheme,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Seed sets the depth budget and fills the queue. The root document is
// always enqueued first, ahead of any seed and regardless of policy.
func (f *Frontier) Seed(seeds []model.URL, depth int) {
	f.depth = depth
	f.forceEnqueue(f.root)
	for _, u := range seeds {
		f.Enqueue(u)
	}
}

func (f *Frontier) forceEnqueue(u model.URL) {
	u = f.CorrectScheme(u)
	h := u.Hash()
	if _, ok := f.known[h]; ok {
		return
	}
	f.known[h] = false
	f.queue = append(f.queue, u)
}

// Enqueue adds u to the queue. It returns false when u is off-domain,
// blocklisted, over the memory cap, already known, or rejected by the link
// filter. Filtered URLs are remembered as known.
func (f *Frontier) Enqueue(u model.URL) bool {
	if u.Domain != f.root.Domain {
		return false
	}

	u = f.CorrectScheme(u)

	if f.blocklist != nil && f.blocklist.IsURLBlocked(u) {
		return false
	}

	if len(f.known) >= f.depth+f.slack {
		return false
	}

	h := u.Hash()
	if _, ok := f.known[h]; ok {
		return false
	}

	f.known[h] = false
	if !f.filter(u) {
		return false
	}

	f.queue = append(f.queue, u)
	return true
}

// EnqueueAll enqueues every URL and returns how many were accepted.
func (f *Frontier) EnqueueAll(urls []model.URL) int {
	n := 0
	for _, u := range urls {
		if f.Enqueue(u) {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the queue has no pending URL.
func (f *Frontier) IsEmpty() bool {
	return f.head >= len(f.queue)
}

// TakeNext pops the oldest pending URL. Callers must check IsEmpty first.
func (f *Frontier) TakeNext() model.URL {
	u := f.queue[f.head]
	f.queue[f.head] = model.URL{}
	f.head++

	if f.head >= compactThreshold && f.head*2 >= len(f.queue) {
		f.queue = append(f.queue[:0:0], f.queue[f.head:]...)
		f.head = 0
	}

	return u
}

// MarkVisited records u as visited. It returns true only the first time.
func (f *Frontier) MarkVisited(u model.URL) bool {
	h := u.Hash()
	if f.known[h] {
		return false
	}
	f.known[h] = true
	f.visitedCount++
	return true
}

// IsVisited reports whether u was marked visited.
func (f *Frontier) IsVisited(u model.URL) bool {
	return f.known[u.Hash()]
}

// IsKnown reports whether u was ever queued, filtered or visited.
func (f *Frontier) IsKnown(u model.URL) bool {
	_, ok := f.known[u.Hash()]
	return ok
}

// GrowDepth raises the depth budget to
// min(max(visited, budget) + limit, max(visited, budget) * factor).
// The budget never shrinks. It returns the resulting budget.
func (f *Frontier) GrowDepth(factor float64, limit int) int {
	base := max(f.visitedCount, f.depth)
	grown := min(base+limit, int(float64(base)*factor))
	if grown > f.depth {
		f.depth = grown
	}
	return f.depth
}

// IsExhausted reports whether the visit budget is used up.
func (f *Frontier) IsExhausted() bool {
	return f.visitedCount >= f.depth
}

// SetLinkFilter replaces the link filter. A nil filter accepts everything.
func (f *Frontier) SetLinkFilter(filter LinkFilter) {
	if filter == nil {
		filter = AcceptAll
	}
	f.filter = filter
}

// Filter reports whether the current link filter accepts u.
func (f *Frontier) Filter(u model.URL) bool {
	return f.filter(u)
}

// IsBlocked reports whether the blocklist rejects u.
func (f *Frontier) IsBlocked(u model.URL) bool {
	return f.blocklist != nil && f.blocklist.IsURLBlocked(u)
}

// SetPreferredScheme changes the canonical protocol for the domain.
func (f *Frontier) SetPreferredScheme(scheme string) {
	if scheme == "http" || scheme == "https" {
		f.preferredScheme = scheme
		f.root.Scheme = scheme
	}
}

// PreferredScheme returns the canonical protocol for the domain.
func (f *Frontier) PreferredScheme() string {
	return f.preferredScheme
}

// CorrectScheme rewrites a same-domain URL to the preferred protocol.
func (f *Frontier) CorrectScheme(u model.URL) model.URL {
	if u.Domain == f.root.Domain && u.Scheme != f.preferredScheme {
		return u.WithScheme(f.preferredScheme)
	}
	return u
}

// Root returns the root document URL.
func (f *Frontier) Root() model.URL { return f.root }

// Domain returns the crawled host.
func (f *Frontier) Domain() string { return f.root.Domain }

// Depth returns the current visit budget.
func (f *Frontier) Depth() int { return f.depth }

// VisitedCount returns how many URLs were marked visited.
func (f *Frontier) VisitedCount() int { return f.visitedCount }

// KnownCount returns how many URL hashes are known.
func (f *Frontier) KnownCount() int { return len(f.known) }

// QueueSize returns how many URLs are pending.
func (f *Frontier) QueueSize() int { return len(f.queue) - f.head }
