/*
Package metrics defines and registers the engine's Prometheus metrics:
store commits and revision watermarks (C2/C6), query execution and plan
choice (C9), garbage collection cycles (§4.6), change-replay lag (C10),
and full-text index size (C5). Metrics are package-level vars registered
at init against the default registry and exposed via Handler for
scraping.

# Categories

	Store:          sink_store_commits_total, sink_store_commit_duration_seconds,
	                sink_store_max_revision, sink_store_cleaned_up_revision
	Query:          sink_query_duration_seconds, sink_query_index_plan_total,
	                sink_live_queries_active
	GC:             sink_gc_cycle_duration_seconds, sink_gc_cycles_total,
	                sink_gc_revisions_collected_total
	Change-replay:  sink_changereplay_lag_revisions,
	                sink_changereplay_cycles_total,
	                sink_changereplay_cycle_duration_seconds
	Fulltext:       sink_fulltext_query_duration_seconds,
	                sink_fulltext_documents_total

Gauges carrying a "resource" label are per-resource-environment values;
a process hosting multiple resources reports one series per resource.

Timer wraps a start time and observes elapsed duration into a histogram
(optionally with label values for a vec), used at every suspension
point (§5) the engine instruments.
*/
package metrics
