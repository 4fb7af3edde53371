// Package payload turns inbound predict bodies into pipeline parameters.
//
// The shape of a request is decided once, at the HTTP boundary, into a
// Payload tagged union. Preprocess validates the legacy "instances" shape and
// returns Params in which every list, at any depth, has been replaced by an
// immutable Tuple.
package payload
