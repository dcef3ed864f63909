// Package gateway orchestrates the mwassistant-gateway server components.
//
// # Overview
//
// The Gateway owns the SQLite store and everything built on it: the
// permission engine, the namespace allow-list resolver, the token signer and
// verifier, the access gate, the assistant backend client, the embedding
// indexer and the HTTP API.
//
// Construction order:
//
//	store -> permissions.Engine -> auth.NamespaceResolver
//	      -> auth.Verifier -> auth.Gate
//	      -> auth.Signer + mcp.Client (assistant enabled only)
//	      -> embeddings.Indexer -> api.Server
//
// Any configuration error aborts construction and closes the store. While
// the assistant is disabled the signing settings are not read until
// Signer is first called.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	defer gw.Close()
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run serves HTTP and drives the indexer workers in one errgroup. When ctx
// is canceled or either side fails, the HTTP server is shut down with a
// five second grace period.
package gateway
