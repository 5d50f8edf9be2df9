// Package api hosts the read-only HTTP surface over the dataset, the
// analyzer and the run history. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/records filtered by region, source, scrape date and match flag.
//   - GET /v1/trending for windowed TF-IDF term lift.
//   - GET /v1/analysis/top-terms for the latest analyzer snapshot.
//   - GET /v1/runs/latest for the most recent run and its source outcomes.
//   - GET /v1/search when an Elasticsearch mirror is configured.
package api
