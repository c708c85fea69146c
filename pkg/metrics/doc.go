/*
Package metrics exposes Prometheus metrics for the delta library.

Metrics cover the commit path (commits, rebases, conflicts, latency),
snapshot reconstruction, checkpoint writes, merge row outcomes, data
skipping effectiveness, and streaming admission.

Serving metrics:

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)

Timing an operation:

	timer := metrics.NewTimer()
	// ... commit ...
	timer.ObserveDuration(metrics.CommitDuration)
*/
package metrics
