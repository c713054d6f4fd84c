// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps an [authcore.Engine] and exposes an
// [http.Handler]. Counter names are authcore_*_total; the single histogram
// is authcore_validate_latency_seconds. Nothing is registered globally:
// callers mount the Handler themselves.
package prometheus
