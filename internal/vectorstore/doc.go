// Package vectorstore is a small Qdrant REST client covering what the
// indexer needs: collection bootstrap, payload indexes, upsert, filtered
// delete and nearest-neighbour search.
//
// Every call is retried under the configured policy when it fails with a
// transient OperationError (timeouts, refused or reset connections, empty
// replies, 408/429/502/503/504).
package vectorstore
