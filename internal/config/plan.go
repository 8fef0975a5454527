package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/warcrawl/internal/model"
)

// ErrPlanNotFound is returned when the crawl plan file does not exist.
var ErrPlanNotFound = errors.New("crawl plan not found")

// PlanEntry describes one domain of a crawl plan.
type PlanEntry struct {
	// Domain is the host name to crawl.
	Domain string `yaml:"domain"`

	// Depth overrides the plan default for this domain.
	// If zero, the default depth is used.
	Depth int `yaml:"depth,omitempty"`

	// Seeds are extra start URLs on the domain.
	Seeds []string `yaml:"seeds,omitempty"`
}

// PlanDefaults are applied to every entry that does not override them.
type PlanDefaults struct {
	// Depth is the visit budget of entries without one.
	Depth int `yaml:"depth,omitempty"`
}

// Plan represents the structure of a crawl plan file.
type Plan struct {
	// Defaults contains values applied to all entries unless overridden.
	Defaults PlanDefaults `yaml:"defaults,omitempty"`

	// Domains lists the domains to crawl in order.
	Domains []PlanEntry `yaml:"domains"`
}

// LoadPlan loads a crawl plan from a YAML file.
// If the file does not exist, it returns ErrPlanNotFound.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided plan path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, path)
		}
		return nil, err
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse crawl plan: %w", err)
	}
	return &plan, nil
}

// Specs returns one crawl spec per domain. Entry depth wins over the plan
// default, which wins over fallbackDepth. A domain listed twice keeps its
// first entry with the seeds of both.
func (p *Plan) Specs(fallbackDepth int) ([]model.CrawlSpec, error) {
	defaultDepth := fallbackDepth
	if p.Defaults.Depth > 0 {
		defaultDepth = p.Defaults.Depth
	}

	specs := make([]model.CrawlSpec, 0, len(p.Domains))
	index := make(map[string]int, len(p.Domains))
	for i, entry := range p.Domains {
		depth := entry.Depth
		if depth == 0 {
			depth = defaultDepth
		}
		spec := model.NewCrawlSpec(entry.Domain, depth, entry.Seeds...)
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("plan entry %d (%q): %w", i+1, entry.Domain, err)
		}
		if j, ok := index[spec.Domain]; ok {
			specs[j].Seeds = append(specs[j].Seeds, spec.Seeds...)
			continue
		}
		index[spec.Domain] = len(specs)
		specs = append(specs, spec)
	}
	return specs, nil
}

// SpecsFromDomains builds specs for domains named on the command line.
func SpecsFromDomains(domains []string, depth int) ([]model.CrawlSpec, error) {
	plan := Plan{Domains: make([]PlanEntry, 0, len(domains))}
	for _, d := range domains {
		plan.Domains = append(plan.Domains, PlanEntry{Domain: d})
	}
	return plan.Specs(depth)
}
