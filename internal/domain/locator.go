package domain

import (
	"fmt"
	"strings"
)

// DefaultBaseURL is the root of the public CCKP archive.
const DefaultBaseURL = "s3://wbg-cckp/data"

const (
	era5Collection  = "era5-x0.25"
	era5Dataset     = "era5-x0.25-historical"
	era5Percentile  = "mean"
	cmip6Collection = "cmip6-x0.25"

	aggregationPeriod = "annual"
	statistic         = "mean"
	extension         = "nc"

	productTimeseries  = "timeseries"
	productClimatology = "climatology"
)

// Artifact kinds as they appear in object keys and data variable names.
const (
	KindTimeseries      = "timeseries"
	KindClimatology     = "climatology"
	KindTrend           = "trend"
	KindTrendConfidence = "trendconfidence"
)

var (
	era5TimeseriesRange   = "1950-2022"
	era5ClimatologyWindow = "1991-2020"
	era5TrendWindows      = []string{"1951-2020", "1971-2020", "1991-2020"}

	cmip6HistoricalRange   = "1950-2014"
	cmip6ProjectionRange   = "2015-2100"
	cmip6HistoricalWindows = []string{"1995-2014"}
	cmip6ProjectionWindows = []string{"2020-2039", "2040-2059", "2060-2079", "2080-2099"}
)

// Artifact is one remote object together with how its data lands in a table.
type Artifact struct {
	Group Group
	Kind  string
	URL   string
	// DataVar is the variable to read from the file.
	DataVar string
	// Column is the table column the values are written to.
	Column string
	// Window is the row label for single-step window files. Empty for series.
	Window string
}

// GroupPlan lists the artifacts of one group. Every artifact is attempted.
type GroupPlan struct {
	Group     Group
	Artifacts []Artifact
}

// Plan is the complete set of objects a job needs.
type Plan struct {
	Params JobParams
	Groups []GroupPlan
}

// URLs flattens the plan in group order.
func (p Plan) URLs() []string {
	var out []string
	for _, g := range p.Groups {
		for _, a := range g.Artifacts {
			out = append(out, a.URL)
		}
	}
	return out
}

// Group returns the plan of a single group.
func (p Plan) Group(g Group) (GroupPlan, bool) {
	for _, gp := range p.Groups {
		if gp.Group == g {
			return gp, true
		}
	}
	return GroupPlan{}, false
}

// Locator maps job parameters to object keys. It performs no I/O.
type Locator struct {
	baseURL string
}

// NewLocator creates a Locator rooted at baseURL. An empty base selects
// DefaultBaseURL.
func NewLocator(baseURL string) Locator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Locator{baseURL: strings.TrimRight(baseURL, "/")}
}

// BaseURL returns the archive root.
func (l Locator) BaseURL() string { return l.baseURL }

// Locate validates params and builds the artifact plan.
func (l Locator) Locate(p JobParams) (Plan, error) {
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	if l.baseURL == "" {
		l = NewLocator("")
	}
	switch p.Source {
	case SourceERA5:
		return Plan{Params: p, Groups: l.era5(p)}, nil
	default:
		return Plan{Params: p, Groups: l.cmip6(p)}, nil
	}
}

func (l Locator) era5(p JobParams) []GroupPlan {
	v := string(p.Variable)

	primary := GroupPlan{Group: GroupTimeseries}
	if p.Climatology {
		primary.Artifacts = append(primary.Artifacts, Artifact{
			Group:   GroupTimeseries,
			Kind:    KindClimatology,
			URL:     l.objectURL(era5Collection, v, era5Dataset, KindClimatology, productClimatology, era5Percentile, era5ClimatologyWindow),
			DataVar: DataVarName(KindClimatology, v),
			Column:  DataVarName(KindClimatology, v),
			Window:  era5ClimatologyWindow,
		})
	} else {
		primary.Artifacts = append(primary.Artifacts, Artifact{
			Group:   GroupTimeseries,
			Kind:    KindTimeseries,
			URL:     l.objectURL(era5Collection, v, era5Dataset, KindTimeseries, productTimeseries, era5Percentile, era5TimeseriesRange),
			DataVar: DataVarName(KindTimeseries, v),
			Column:  DataVarName(KindTimeseries, v),
		})
	}

	trend := GroupPlan{Group: GroupTrend}
	confidence := GroupPlan{Group: GroupConfidence}
	for _, w := range era5TrendWindows {
		trend.Artifacts = append(trend.Artifacts, Artifact{
			Group:   GroupTrend,
			Kind:    KindTrend,
			URL:     l.objectURL(era5Collection, v, era5Dataset, KindTrend, productClimatology, era5Percentile, w),
			DataVar: DataVarName(KindTrend, v),
			Column:  v + "_trend",
			Window:  w,
		})
		confidence.Artifacts = append(confidence.Artifacts, Artifact{
			Group:   GroupConfidence,
			Kind:    KindTrendConfidence,
			URL:     l.objectURL(era5Collection, v, era5Dataset, KindTrendConfidence, productClimatology, era5Percentile, w),
			DataVar: DataVarName(KindTrendConfidence, v),
			Column:  v + "_trend_confidence",
			Window:  w,
		})
	}

	return []GroupPlan{primary, trend, confidence}
}

func (l Locator) cmip6(p JobParams) []GroupPlan {
	v := string(p.Variable)
	dataset := "ensemble-all-" + string(p.Scenario)
	historical := p.Scenario == ScenarioHistorical

	primary := GroupPlan{Group: GroupTimeseries}
	for _, b := range sortedBands(p.Bands) {
		column := fmt.Sprintf("%s_%s_%s", v, p.Scenario, b)
		if !p.Climatology {
			span := cmip6ProjectionRange
			if historical {
				span = cmip6HistoricalRange
			}
			primary.Artifacts = append(primary.Artifacts, Artifact{
				Group:   GroupTimeseries,
				Kind:    KindTimeseries,
				URL:     l.objectURL(cmip6Collection, v, dataset, KindTimeseries, productTimeseries, string(b), span),
				DataVar: DataVarName(KindTimeseries, v),
				Column:  column,
			})
			continue
		}
		windows := cmip6ProjectionWindows
		if historical {
			windows = cmip6HistoricalWindows
		}
		for _, w := range windows {
			primary.Artifacts = append(primary.Artifacts, Artifact{
				Group:   GroupTimeseries,
				Kind:    KindClimatology,
				URL:     l.objectURL(cmip6Collection, v, dataset, KindClimatology, productClimatology, string(b), w),
				DataVar: DataVarName(KindClimatology, v),
				Column:  column,
				Window:  w,
			})
		}
	}

	return []GroupPlan{primary}
}

func (l Locator) objectURL(collection, variable, dataset, kind, product, percentile, span string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s-%s-%s-%s_%s_%s_%s_%s_%s.%s",
		l.baseURL, collection, variable, dataset,
		kind, variable, aggregationPeriod, statistic,
		collection, dataset, product, percentile, span, extension)
}

// DataVarName returns the name of the data variable stored in a file of the
// given kind, e.g. "timeseries-tas-annual-mean".
func DataVarName(kind, variable string) string {
	return fmt.Sprintf("%s-%s-%s-%s", kind, variable, aggregationPeriod, statistic)
}
