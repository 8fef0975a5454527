package prober

import (
	"github.com/nao1215/warcrawl/internal/model"
)

// Status classifies a failed probe.
type Status string

// Probe failure statuses.
const (
	// StatusNoKnownURLs means there was nothing to probe.
	StatusNoKnownURLs Status = "no-known-urls"
	// StatusBlocked means the domain resolved to a blocklisted address.
	StatusBlocked Status = "blocked"
	// StatusBadStatus means the root answered with an HTTP error.
	StatusBadStatus Status = "bad-status"
	// StatusTimeout means the root did not answer in time.
	StatusTimeout Status = "timeout"
	// StatusUnreachable means the host could not be resolved or connected to.
	StatusUnreachable Status = "unreachable"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// Result is the outcome of a probe: Ok, Redirect or Error.
type Result interface {
	isResult()
	// String renders the outcome for the warcinfo record and reports.
	String() string
}

// Ok means the domain is crawlable starting at URL.
type Ok struct {
	// URL is the root actually reached, after same-domain redirects.
	URL model.URL
	// IP is the address the domain resolved to.
	IP string
}

// Redirect means the root redirected to another domain.
type Redirect struct {
	Domain string
	IP     string
}

// Error means the domain should not be crawled now.
type Error struct {
	Status      Status
	Description string
	IP          string
}

func (Ok) isResult()       {}
func (Redirect) isResult() {}
func (Error) isResult()    {}

func (r Ok) String() string {
	return "ok " + r.URL.String()
}

func (r Redirect) String() string {
	return "redirect " + r.Domain
}

func (r Error) String() string {
	if r.Description == "" {
		return "error " + r.Status.String()
	}
	return "error " + r.Status.String() + ": " + r.Description
}

// IPOf returns the resolved address carried by any result.
func IPOf(r Result) string {
	switch v := r.(type) {
	case Ok:
		return v.IP
	case Redirect:
		return v.IP
	case Error:
		return v.IP
	default:
		return ""
	}
}
