// Package frontier holds the per-domain crawl frontier: the FIFO queue of
// URLs waiting to be fetched, the hash set of URLs already seen, the depth
// budget, and the link-acceptance policy.
//
// URL identity is model.URL.Hash, which ignores scheme and port. Every URL
// that reaches the queue is first rewritten to the domain's preferred
// protocol, so http and https spellings of a path collapse to one entry.
//
// # Usage
//
//	f := frontier.New(root, frontier.WithBlocklist(bl))
//	f.Seed(spec.SeedURLs(), spec.Depth)
//	for !f.IsEmpty() && !f.IsExhausted() {
//	    u := f.TakeNext()
//	    if !f.MarkVisited(u) {
//	        continue
//	    }
//	    // fetch u
//	}
package frontier
