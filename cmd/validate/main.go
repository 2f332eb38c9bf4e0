// Command validate checks the variable registry and the archive layout the
// locator produces. It verifies registry integrity, plan shapes and URL
// uniqueness for every variable, source, scenario and band, and optionally
// probes the configured object store with one real retrieval.
//
// Usage:
//
//	go run ./cmd/validate -registry internal/registry/variables.csv
//	go run ./cmd/validate -probe -probe-var tas -lat 45.1 -lon 7.7
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/climate-indicator-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/s3"
	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
	"github.com/couchcryptid/climate-indicator-service/internal/registry"
	"github.com/couchcryptid/climate-indicator-service/internal/retrieval"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	registryPath string
	baseURL      string
	probe        bool
	probeVar     string
	endpoint     string
	region       string
	lat, lon     float64
}

func main() {
	var opts options
	flag.StringVar(&opts.registryPath, "registry", "", "variable registry CSV (default: embedded registry)")
	flag.StringVar(&opts.baseURL, "base", domain.DefaultBaseURL, "archive root")
	flag.BoolVar(&opts.probe, "probe", false, "fetch one ERA5 job from the archive")
	flag.StringVar(&opts.probeVar, "probe-var", "tas", "variable to probe")
	flag.StringVar(&opts.endpoint, "endpoint", "", "S3 endpoint override for -probe")
	flag.StringVar(&opts.region, "region", "us-east-1", "S3 region for -probe")
	flag.Float64Var(&opts.lat, "lat", 45.1, "probe latitude")
	flag.Float64Var(&opts.lon, "lon", 7.7, "probe longitude")
	flag.Parse()

	os.Exit(run(opts))
}

func run(opts options) int {
	fmt.Println("=== Climate Archive Validation ===")
	fmt.Println()

	reg, err := registry.Load(opts.registryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load registry: %v\n", err)
		return 1
	}
	locator := domain.NewLocator(opts.baseURL)

	phases := []*phase{
		validateRegistry(reg),
		validatePlans(reg, locator),
	}
	if opts.probe {
		phases = append(phases, probeArchive(reg, locator, opts))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Variables: %d in %d categories, archive root %s\n",
		reg.Len(), len(reg.Categories()), locator.BaseURL())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: registry ──

func validateRegistry(reg *registry.Registry) *phase {
	p := &phase{name: "Registry integrity"}
	fmt.Printf("Phase 1: %s\n", p.name)

	seen := map[domain.VariableCode]bool{}
	for _, v := range reg.All() {
		if seen[v.Code] {
			p.errorf("%s: duplicate code", v.Code)
		}
		seen[v.Code] = true

		if strings.TrimSpace(v.Name) == "" {
			p.errorf("%s: empty name", v.Code)
		}
		if strings.TrimSpace(v.Unit) == "" {
			p.errorf("%s: empty unit", v.Code)
		}
		if v.NormalizationFactor <= 0 || math.IsNaN(v.NormalizationFactor) {
			p.errorf("%s: normalization factor %v must be positive", v.Code, v.NormalizationFactor)
		}
		if !contains(domain.Categories, v.Category) {
			p.errorf("%s: unknown category %q", v.Code, v.Category)
		}
	}

	for _, code := range domain.ScreeningSet {
		if !seen[code] {
			p.errorf("screening indicator %s is not in the registry", code)
		}
	}
	for _, c := range domain.Categories {
		if len(reg.ByCategory(c)) == 0 {
			p.errorf("category %q has no variables", c)
		}
	}

	fmt.Printf("  %d variables, %d screening indicators\n", reg.Len(), len(domain.ScreeningSet))
	return p
}

// ── Phase 2: locator plans ──

// expectedObjects returns how many objects a job should name.
func expectedObjects(params domain.JobParams) int {
	if params.Source == domain.SourceERA5 {
		return 7 // 1 primary + 3 trend + 3 trend confidence
	}
	bands := len(params.Bands)
	if !params.Climatology {
		return bands
	}
	if params.Scenario == domain.ScenarioHistorical {
		return bands
	}
	return bands * 4
}

func validatePlans(reg *registry.Registry, locator domain.Locator) *phase {
	p := &phase{name: "Locator plans"}
	fmt.Printf("Phase 2: %s\n", p.name)

	owners := map[string]domain.JobKey{}
	var plans, objects int
	for _, v := range reg.All() {
		for _, job := range allJobs(v.Code) {
			plan, err := locator.Locate(job)
			if err != nil {
				p.errorf("%s: locate: %v", job.Key(), err)
				continue
			}
			plans++

			urls := plan.URLs()
			objects += len(urls)
			if want := expectedObjects(job); len(urls) != want {
				p.errorf("%s (climatology=%t): %d objects, want %d", job.Key(), job.Climatology, len(urls), want)
			}
			checkPlan(p, locator, plan, owners)
		}
	}

	fmt.Printf("  %d plans, %d objects, %d distinct\n", plans, objects, len(owners))
	return p
}

func checkPlan(p *phase, locator domain.Locator, plan domain.Plan, owners map[string]domain.JobKey) {
	key := plan.Params.Key()
	for _, gp := range plan.Groups {
		columns := map[string]bool{}
		for _, a := range gp.Artifacts {
			if !strings.HasPrefix(a.URL, locator.BaseURL()+"/") {
				p.errorf("%s: %s is outside the archive root", key, a.URL)
			}
			if !strings.HasSuffix(a.URL, ".nc") {
				p.errorf("%s: %s is not a NetCDF object", key, a.URL)
			}
			if !strings.Contains(a.URL, "/"+a.DataVar) {
				p.errorf("%s: object name %s does not carry data variable %s", key, a.URL, a.DataVar)
			}
			if a.Group != gp.Group {
				p.errorf("%s: artifact of %s listed under %s", key, a.Group, gp.Group)
			}

			col := a.Column + "@" + a.Window
			if columns[col] {
				p.errorf("%s: duplicate column %s in %s", key, col, gp.Group)
			}
			columns[col] = true

			// Timeseries and climatology jobs of one key share trend objects.
			if prev, ok := owners[a.URL]; ok && prev != key {
				p.errorf("%s: %s also located by %s", key, a.URL, prev)
			}
			owners[a.URL] = key
		}
	}
}

func allJobs(code domain.VariableCode) []domain.JobParams {
	var jobs []domain.JobParams
	for _, clim := range []bool{false, true} {
		jobs = append(jobs, domain.JobParams{Variable: code, Source: domain.SourceERA5, Climatology: clim})
		for _, sc := range domain.Scenarios {
			jobs = append(jobs, domain.JobParams{
				Variable:    code,
				Source:      domain.SourceCMIP6,
				Scenario:    sc,
				Bands:       domain.Bands,
				Climatology: clim,
			})
		}
	}
	return jobs
}

// ── Phase 3: archive probe ──

func probeArchive(reg *registry.Registry, locator domain.Locator, opts options) *phase {
	p := &phase{name: "Archive probe"}
	fmt.Printf("Phase 3: %s\n", p.name)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()
	objects := s3.NewStore(s3.Config{Region: opts.region, Endpoint: opts.endpoint, MaxRetries: 2}, metrics, logger)
	decoder := netcdf.NewDecoder(os.TempDir())
	retriever := retrieval.NewRetriever(locator, retrieval.NewFetcher(objects, decoder, metrics, logger), reg, metrics, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	job := domain.JobParams{Variable: domain.VariableCode(opts.probeVar), Source: domain.SourceERA5}
	res, err := retriever.Retrieve(ctx, job, domain.Point{Lat: opts.lat, Lon: opts.lon})
	if err != nil {
		p.errorf("%s: %v", job.Key(), err)
		return p
	}
	for _, g := range domain.Groups {
		fmt.Printf("  %-12s %s\n", g, res.Status[g])
		if res.Status[g] == domain.StatusError {
			p.errorf("%s: %s failed: %s", job.Key(), g, res.Failures[g])
		}
	}
	if len(res.Payload.Values) == 0 {
		p.errorf("%s: payload has no values", job.Key())
	}
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
