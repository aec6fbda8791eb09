/*
Package pagepulse supervises the page-performance aggregation pipeline.

# Overview

pagepulse ingests mixed structured and semi-structured page-performance
events, normalizes and flattens them, computes per-page averages (TTI,
TTAR), and delivers the result to two independent sinks: an analytical
store and a search index. A retry orchestrator wraps each full pipeline
pass as one supervised run, retrying transient failures with exponential
backoff and escalating to a human approval step when retries are
exhausted.

Delivery is at-least-once with idempotent upserts keyed by page URL:
replaying a run converges on the same sink state rather than duplicating
rows or double-counting metrics.

# Basic Usage

Wire a source and two sinks into a pipeline, then hand it to the
orchestrator:

	store, _ := sink.NewAnalyticsStore("pagepulse.db")
	index := sink.NewSearchIndex()

	pipe := pagepulse.NewPipeline(
	    source.File{Path: "events.ndjson", Kind: record.KindSemiStructured},
	    sink.NewWriter(store, index),
	)

	orch := pagepulse.NewOrchestrator(pipe, config.Defaults())
	run, err := orch.Trigger(ctx)

Trigger blocks while the run is supervised: it returns once the run
succeeds, is abandoned, or the context is cancelled. While a run is
escalated the orchestrator waits for an approval decision submitted
through the approval store.

# State Machine

A run moves through explicit states:

	Idle -> Running -> Succeeded
	                -> Retrying  -> Running (next attempt)
	                -> Escalated -> Running (approved, attempts reset)
	                             -> Abandoned (rejected or cancelled)

Transient errors (sink or source unavailability) drive the retry path;
invariant violations and configuration errors bypass retry and escalate
immediately.
*/
package pagepulse
