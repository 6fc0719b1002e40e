package storage

// Package storage provides the shared key-value layer used by the pipeline.
//
// It currently backs:
//   - Dedup records (content fingerprints with a TTL)
//   - Rate-limit window counters
