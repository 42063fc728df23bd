// Package nutrunner implements an Open Protocol client for tightening
// controllers and nutrunners: frame codec, revision-aware MID codec,
// command tracker, connection manager with reconnect, and the state +
// event projector and cycle aggregator that turn the wire protocol
// into a typed event stream and a queryable state snapshot.
package nutrunner
