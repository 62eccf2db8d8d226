// Package query turns loosely structured search input into a typed
// SearchQuery.
//
// Free text is decomposed by an ordered extractor pipeline: the first
// double-quoted substring becomes the dialogue facet, the first
// parenthesized substring the parenthetical, and maximal ALL-CAPS word runs
// become characters (single word) or locations (multi-word), with
// scene-heading vocabulary like INT/EXT/DAY reserved. Each stage removes its
// match; whatever text survives is the residual free-text predicate.
//
// Explicit character/dialogue/parenthetical parameters disable the whole
// auto-detection pipeline, never just one facet of it.
package query
