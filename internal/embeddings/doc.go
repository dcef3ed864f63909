// Package embeddings keeps the assistant backend's vector index in step with
// local pages.
//
// Page saves and deletions become queued jobs that a small worker pool sends
// to the backend under the editing user's assertion. Talk pages and user pages
// are never embedded. A batch mode compares local touched timestamps with the
// ones the backend reports and re-sends whatever is stale.
package embeddings
