// Package vector implements the embedding blob codec and similarity ranking.
//
// Stored embeddings use a fixed binary layout: a 4-byte little-endian uint32
// dimension header followed by exactly that many little-endian float32
// elements, with no trailing bytes. Decode validates the layout strictly and
// returns a typed DecodeError on any size or dimension violation; it never
// silently truncates.
//
// The Ranker scores decoded candidates against a query vector with cosine
// similarity. Corrupted candidates are logged and skipped one at a time so a
// single bad blob can never fail a whole search.
package vector
