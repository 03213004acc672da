// Package preflight runs environment checks before indexing.
//
// The checks cover:
//   - corpus roots exist and are directories
//   - the data directory is writable and has free space (minimum 100MB)
//   - the open file limit is high enough for watch mode
//   - the embedding model answers a probe
//   - the reranker, when configured, is reachable
//   - the persisted index is present and consistent with the chunk cache
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
//
// `docindex index` and `docindex watch` run the required checks when the
// data directory has no marker for the current embeddings settings and
// roots, and write one when they pass. `docindex doctor` runs them all.
package preflight
