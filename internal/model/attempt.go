package model

import "time"

// Termination describes why a crawl attempt stopped.
type Termination string

// Termination reasons.
const (
	// TerminationUnknown is the zero value.
	TerminationUnknown Termination = ""
	// TerminationExhausted means the frontier ran empty.
	TerminationExhausted Termination = "exhausted"
	// TerminationDepth means the visit budget was used up.
	TerminationDepth Termination = "depth"
	// TerminationErrors means the per-attempt error ceiling was reached.
	TerminationErrors Termination = "errors"
	// TerminationCancelled means the attempt was cancelled from outside.
	TerminationCancelled Termination = "cancelled"
	// TerminationProbe means the pre-flight probe rejected the domain.
	TerminationProbe Termination = "probe"
	// TerminationFailed means an archive I/O error ended the attempt.
	TerminationFailed Termination = "failed"
)

// String returns the string representation of the Termination.
func (t Termination) String() string {
	if t == TerminationUnknown {
		return "unknown"
	}
	return string(t)
}

// IsValid returns true if this is a known termination reason.
func (t Termination) IsValid() bool {
	switch t {
	case TerminationExhausted, TerminationDepth, TerminationErrors,
		TerminationCancelled, TerminationProbe, TerminationFailed:
		return true
	default:
		return false
	}
}

// ParseTermination converts a string to a Termination.
func ParseTermination(s string) Termination {
	t := Termination(s)
	if t.IsValid() {
		return t
	}
	return TerminationUnknown
}

// AttemptReport summarizes a single domain crawl attempt.
type AttemptReport struct {
	// Domain is the crawled host.
	Domain string `json:"domain"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the archive was closed.
	FinishedAt time.Time `json:"finished_at"`

	// ProbeOutcome is the rendered pre-flight probe result.
	ProbeOutcome string `json:"probe_outcome"`

	// RootURL is the root document URL the probe settled on.
	RootURL string `json:"root_url,omitempty"`

	// IP is the address the domain resolved to during the probe.
	IP string `json:"ip,omitempty"`

	// Fetched counts successfully fetched documents, revisits included.
	Fetched int `json:"fetched"`

	// Revisited counts documents confirmed through the revisit pass.
	Revisited int `json:"revisited"`

	// Retained counts revisited documents whose content was unchanged.
	Retained int `json:"retained"`

	// Resynced counts documents recovered from an aborted attempt's archive.
	Resynced int `json:"resynced"`

	// Errors counts fetch exceptions charged against the error ceiling.
	Errors int `json:"errors"`

	// Refusals counts refusal records written.
	Refusals int `json:"refusals"`

	// Visited is the number of URLs marked visited in the frontier.
	Visited int `json:"visited"`

	// Queued is the number of URLs left in the queue at the end.
	Queued int `json:"queued"`

	// DepthBudget is the final depth budget, after any growth.
	DepthBudget int `json:"depth_budget"`

	// Termination is why the attempt stopped.
	Termination Termination `json:"termination"`

	// ArchivePath is where the archive of this attempt was stored.
	ArchivePath string `json:"archive_path,omitempty"`

	// Error holds the message of a fatal archive error, if any.
	Error string `json:"error,omitempty"`
}

// NewAttemptReport creates a report for domain stamped with the current time.
func NewAttemptReport(domain string) *AttemptReport {
	return &AttemptReport{
		Domain:    domain,
		StartedAt: time.Now(),
	}
}

// Duration returns the wall-clock duration of the attempt.
func (r *AttemptReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the attempt got past the probe and kept its archive.
func (r *AttemptReport) Succeeded() bool {
	return r.Termination != TerminationProbe && r.Termination != TerminationFailed
}
