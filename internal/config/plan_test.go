package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/warcrawl/internal/model"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPlan(t *testing.T) {
	t.Parallel()

	t.Run("valid plan", func(t *testing.T) {
		t.Parallel()

		path := writePlan(t, `
defaults:
  depth: 50
domains:
  - domain: Example.COM
    depth: 500
    seeds:
      - https://example.com/start
  - domain: other.example
`)
		plan, err := LoadPlan(path)
		if err != nil {
			t.Fatalf("LoadPlan() error = %v", err)
		}
		specs, err := plan.Specs(DefaultDepth)
		if err != nil {
			t.Fatalf("Specs() error = %v", err)
		}
		if len(specs) != 2 {
			t.Fatalf("expected 2 specs, got %d", len(specs))
		}
		if specs[0].Domain != "example.com" || specs[0].Depth != 500 || len(specs[0].Seeds) != 1 {
			t.Errorf("unexpected first spec: %+v", specs[0])
		}
		if specs[1].Depth != 50 {
			t.Errorf("expected plan default depth 50, got %d", specs[1].Depth)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, ErrPlanNotFound) {
			t.Errorf("expected ErrPlanNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadPlan(writePlan(t, "domains: [\n")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestPlanSpecs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		plan    Plan
		want    []model.CrawlSpec
		wantErr error
	}{
		{
			name: "fallback depth",
			plan: Plan{Domains: []PlanEntry{{Domain: "a.example"}}},
			want: []model.CrawlSpec{{Domain: "a.example", Depth: 100}},
		},
		{
			name: "duplicate domains merge seeds",
			plan: Plan{Domains: []PlanEntry{
				{Domain: "a.example", Seeds: []string{"https://a.example/1"}},
				{Domain: "A.example", Depth: 9, Seeds: []string{"https://a.example/2"}},
			}},
			want: []model.CrawlSpec{{Domain: "a.example", Depth: 100, Seeds: []string{"https://a.example/1", "https://a.example/2"}}},
		},
		{
			name:    "empty domain",
			plan:    Plan{Domains: []PlanEntry{{Domain: " "}}},
			wantErr: model.ErrEmptyDomain,
		},
		{
			name:    "negative depth",
			plan:    Plan{Domains: []PlanEntry{{Domain: "a.example", Depth: -1}}},
			wantErr: model.ErrInvalidDepth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.plan.Specs(DefaultDepth)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d specs, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].Domain != tt.want[i].Domain || got[i].Depth != tt.want[i].Depth {
					t.Errorf("spec %d = %+v, want %+v", i, got[i], tt.want[i])
				}
				if len(got[i].Seeds) != len(tt.want[i].Seeds) {
					t.Errorf("spec %d seeds = %v, want %v", i, got[i].Seeds, tt.want[i].Seeds)
				}
			}
		})
	}
}

func TestSpecsFromDomains(t *testing.T) {
	t.Parallel()

	specs, err := SpecsFromDomains([]string{"a.example", "b.example"}, 30)
	if err != nil {
		t.Fatalf("SpecsFromDomains() error = %v", err)
	}
	if len(specs) != 2 || specs[1].Domain != "b.example" || specs[1].Depth != 30 {
		t.Errorf("unexpected specs: %+v", specs)
	}
}
