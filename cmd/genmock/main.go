// Command genmock writes a synthetic mirror of the CCKP archive layout for
// local development and integration tests. Every object a job plan names is
// written as a small classic NetCDF file under -out/<bucket>/<key>, so the
// directory can be served by any S3-compatible server and reached through
// CCKP_S3_ENDPOINT.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock \
//	  -vars tas,pr \
//	  -scenarios ssp245,ssp585 \
//	  -lat 45.1 -lon 7.7
package main

import (
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/climate-indicator-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/s3"
	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/registry"
)

const cellSize = 0.25

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the mirrored objects")
	vars := flag.String("vars", "", "comma-separated variable codes (default: screening set)")
	scenarios := flag.String("scenarios", "ssp245,ssp585", "comma-separated CMIP6 scenarios")
	bands := flag.String("bands", "p10,median,p90", "comma-separated ensemble bands")
	climatology := flag.Bool("climatology", false, "write climatology windows instead of timeseries")
	lat := flag.Float64("lat", 45.1, "latitude the grids are centred on")
	lon := flag.Float64("lon", 7.7, "longitude the grids are centred on")
	radius := flag.Int("radius", 2, "grid cells on each side of the centre cell")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	reg, err := registry.Default()
	if err != nil {
		return err
	}
	codes := domain.ScreeningSet
	if *vars != "" {
		codes = nil
		for _, c := range splitList(*vars) {
			if _, err := reg.Lookup(domain.VariableCode(c)); err != nil {
				return err
			}
			codes = append(codes, domain.VariableCode(c))
		}
	}

	req := domain.RetrievalRequest{
		Variables:   codes,
		Sources:     []domain.SourceKind{domain.SourceERA5, domain.SourceCMIP6},
		Climatology: *climatology,
	}
	for _, s := range splitList(*scenarios) {
		sc, err := domain.ParseScenario(s)
		if err != nil {
			return err
		}
		req.Scenarios = append(req.Scenarios, sc)
	}
	for _, s := range splitList(*bands) {
		b, err := domain.ParseBand(s)
		if err != nil {
			return err
		}
		req.Bands = append(req.Bands, b)
	}
	jobs, err := req.Jobs()
	if err != nil {
		return err
	}

	axisLat := axis(*lat, *radius)
	axisLon := axis(*lon, *radius)
	locator := domain.NewLocator("")

	var written int
	for _, job := range jobs {
		plan, err := locator.Locate(job)
		if err != nil {
			return fmt.Errorf("locate %s: %w", job.Key(), err)
		}
		for _, gp := range plan.Groups {
			for _, a := range gp.Artifacts {
				if err := writeArtifact(*out, a, axisLat, axisLon); err != nil {
					return fmt.Errorf("%s: %w", a.URL, err)
				}
				written++
			}
		}
		log.Printf("%s: %d objects", job.Key(), len(plan.URLs()))
	}

	log.Printf("total: %d objects under %s", written, *out)
	return nil
}

func writeArtifact(root string, a domain.Artifact, lat, lon []float64) error {
	bucket, key, err := s3.ParseURL(a.URL)
	if err != nil {
		return err
	}
	path := filepath.Join(root, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	first, last, err := spanYears(a.URL)
	if err != nil {
		return err
	}
	years := []int{first}
	if a.Window == "" {
		years = years[:0]
		for y := first; y <= last; y++ {
			years = append(years, y)
		}
	}

	return netcdf.WriteGrid(path, a.DataVar, synthGrid(a, lat, lon, years))
}

// synthGrid fills a grid with a smooth deterministic field. The level is
// derived from the artifact column so different files hold different values.
func synthGrid(a domain.Artifact, lat, lon []float64, years []int) domain.Grid {
	h := fnv.New32a()
	_, _ = h.Write([]byte(a.Column))
	level := float64(h.Sum32()%3000) / 100

	g := domain.Grid{Lat: lat, Lon: lon, Years: years}
	g.Values = make([]float64, 0, len(years)*len(lat)*len(lon))
	for _, y := range years {
		for i := range lat {
			for j := range lon {
				v := level + 0.02*float64(y-1950) + 0.1*float64(i) - 0.05*float64(j)
				g.Values = append(g.Values, math.Round(v*100)/100)
			}
		}
	}
	return g
}

// axis returns 2*radius+1 cell centres around the cell containing v.
func axis(v float64, radius int) []float64 {
	centre := math.Floor(v/cellSize)*cellSize + cellSize/2
	out := make([]float64, 0, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		out = append(out, centre+float64(k)*cellSize)
	}
	return out
}

// spanYears reads the trailing YYYY-YYYY span of an object key.
func spanYears(objectURL string) (int, int, error) {
	base := strings.TrimSuffix(objectURL, filepath.Ext(objectURL))
	span := base[strings.LastIndex(base, "_")+1:]
	from, to, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, fmt.Errorf("no year span in %q", objectURL)
	}
	first, err := strconv.Atoi(from)
	if err != nil {
		return 0, 0, fmt.Errorf("year span %q: %w", span, err)
	}
	last, err := strconv.Atoi(to)
	if err != nil {
		return 0, 0, fmt.Errorf("year span %q: %w", span, err)
	}
	return first, last, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
