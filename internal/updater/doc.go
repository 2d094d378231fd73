// Package updater keeps configured git checkouts synchronized with their remotes.
//
// It exposes CommandBuilder for wiring the sync Cobra command, Service for
// updating a single checkout, BatchRunner for sequential multi-job runs, and
// supporting abstractions for run logs, scoped execution environments, and job
// manifests.
package updater
