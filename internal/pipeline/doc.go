// Package pipeline runs a connector: it binds inbound parameters, validates
// the document, fetches every declared call, extracts datasets, threads each
// export field through its transform chain and renders the result envelope.
//
// A run never returns partial data. Every failure is classified with a
// core.Kind and reported as a failure envelope.
package pipeline
