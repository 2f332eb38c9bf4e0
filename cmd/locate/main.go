// Command locate prints the archive objects a retrieval job reads. With
// -retrieve it also runs the job against the configured object store and
// prints the assembled payload.
//
// Usage:
//
//	go run ./cmd/locate -var tas -source CMIP6 -scenario ssp245 -bands median,p90
//	go run ./cmd/locate -var pr -retrieve -lat 45.1 -lon 7.7
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/climate-indicator-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-indicator-service/internal/adapter/s3"
	"github.com/couchcryptid/climate-indicator-service/internal/config"
	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
	"github.com/couchcryptid/climate-indicator-service/internal/registry"
	"github.com/couchcryptid/climate-indicator-service/internal/retrieval"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	variable := flag.String("var", "tas", "variable code")
	source := flag.String("source", "ERA5", "ERA5 or CMIP6")
	scenario := flag.String("scenario", "", "CMIP6 scenario")
	bands := flag.String("bands", "median", "comma-separated ensemble bands")
	climatology := flag.Bool("climatology", false, "locate climatology windows instead of timeseries")
	base := flag.String("base", "", "archive root (default: CCKP_BASE_URL or the public archive)")
	retrieve := flag.Bool("retrieve", false, "fetch the objects and print the payload")
	lat := flag.Float64("lat", 0, "latitude for -retrieve")
	lon := flag.Float64("lon", 0, "longitude for -retrieve")
	flag.Parse()

	params, err := jobParams(*variable, *source, *scenario, *bands, *climatology)
	if err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil {
		log.Print("no .env file found, using environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *base != "" {
		cfg.BaseURL = *base
	}

	locator := domain.NewLocator(cfg.BaseURL)
	plan, err := locator.Locate(params)
	if err != nil {
		return err
	}
	fmt.Printf("# %s (%d objects)\n", params.Key(), len(plan.URLs()))
	for _, gp := range plan.Groups {
		for _, a := range gp.Artifacts {
			fmt.Printf("%-16s %-28s %s\n", gp.Group, a.Column, a.URL)
		}
	}
	if !*retrieve {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetricsForTesting()
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}
	objects := s3.NewStore(s3.Config{
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		Timeout:    cfg.FetchTimeout,
		MaxRetries: cfg.FetchMaxRetries,
	}, metrics, logger)
	fetcher := retrieval.NewFetcher(objects, netcdf.NewDecoder(cfg.DecodeTempDir), metrics, logger)
	retriever := retrieval.NewRetriever(locator, fetcher, reg, metrics, logger)

	res, err := retriever.Retrieve(ctx, params, domain.Point{Lat: *lat, Lon: *lon})
	if err != nil {
		return err
	}
	for g, msg := range res.Failures {
		fmt.Fprintf(os.Stderr, "%s: %s\n", g, msg)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Payload)
}

func jobParams(variable, source, scenario, bands string, climatology bool) (domain.JobParams, error) {
	src, err := domain.ParseSource(source)
	if err != nil {
		return domain.JobParams{}, err
	}
	p := domain.JobParams{Variable: domain.VariableCode(variable), Source: src, Climatology: climatology}
	if src == domain.SourceERA5 {
		return p, nil
	}
	if p.Scenario, err = domain.ParseScenario(scenario); err != nil {
		return domain.JobParams{}, err
	}
	for _, s := range strings.Split(bands, ",") {
		b, err := domain.ParseBand(s)
		if err != nil {
			return domain.JobParams{}, err
		}
		p.Bands = append(p.Bands, b)
	}
	return p, nil
}
