// Package domain models climate indicator retrieval from the World Bank
// Climate Change Knowledge Portal (CCKP) raster archive.
//
// # Data Source
//
// Gridded indicators are published as NetCDF files in the public S3 bucket
// wbg-cckp. Objects are read anonymously. Two collections are supported:
//
//	era5-x0.25   ERA5 reanalysis, one dataset (era5-x0.25-historical)
//	cmip6-x0.25  CMIP6 multi-model ensemble, one dataset per scenario
//	             (ensemble-all-historical, ensemble-all-ssp245, ...)
//
// # Object Keys
//
// Every object key follows one template:
//
//	<base>/<collection>/<var>/<dataset>/<kind>-<var>-annual-mean_<collection>_<dataset>_<product>_<percentile>_<range>.nc
//
// kind is timeseries, climatology, trend or trendconfidence. product is
// "timeseries" for timeseries files and "climatology" for everything else,
// including trend files. percentile is "mean" for ERA5 and the ensemble band
// (median, p10, p90) for CMIP6. See [Locator.Locate].
//
// Time ranges:
//
//	ERA5 timeseries       1950-2022
//	ERA5 climatology      1991-2020
//	ERA5 trend/confidence 1951-2020, 1971-2020, 1991-2020 (always fetched)
//	CMIP6 timeseries      1950-2014 (historical), 2015-2100 (projections)
//	CMIP6 climatology     1995-2014 (historical),
//	                      2020-2039, 2040-2059, 2060-2079, 2080-2099 (projections)
//
// # File Layout
//
// Each file holds one data variable named <kind>-<var>-annual-mean over
// (time, lat, lon), plus coordinate bounds (lat_bnds, lon_bnds, bnds) which
// are ignored. Window files (climatology, trend, trendconfidence) carry a
// single time step; the step is replaced by the window label.
//
// # Point Tables
//
// A point query selects the nearest grid node on each axis independently
// (no interpolation). Primary series values are divided by the variable's
// normalization factor; trend and confidence values are not. All values are
// rounded to two decimals and rendered as text so the language model sees the
// exact digits the dashboard shows. Rows are keyed by four-digit year for
// series and by window label (e.g. "1991-2020") for window files.
package domain
