// Package jobstate holds the generic finite-state container shared by every
// long-running job kind: a closed vocabulary of statuses, a transition table
// that rejects illegal moves, and a pure presentation derivation used by the
// UI to render a job's control (label and icon) without looking at raw state.
//
// A Machine is plain state storage. It is not safe for concurrent use; the
// application-layer controllers that own a Machine serialize access to it.
package jobstate
