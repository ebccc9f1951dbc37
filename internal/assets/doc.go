// Package assets defines the core types and collaborator interfaces for the
// icon acquisition pipeline. Infrastructure packages (fetchers, blob stores,
// the catalog, queues) each implement one of the narrow interfaces declared
// here; the pipeline and worker packages consume them.
package assets
