// Package preflight provides system validation checks to run before a
// build starts.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB, against a fixed 4GB estimate)
//   - Write permissions in the output directory
//   - File descriptor limits (minimum 1024)
//   - Embedding provider configuration (constructed locally, not contacted)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, outDir, embedCfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
