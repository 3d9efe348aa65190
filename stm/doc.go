// Package stm implements a TL2-style software transactional memory over a fixed-size, striped byte region (see the
// memory package for the region itself).
//
// A transaction body is a function which receives a transaction object and may only touch shared memory through that
// object's Load and Store methods. The engine runs the body against a snapshot defined by the global version clock at the
// start of the attempt and, for write transactions, buffers every store. Nothing is visible to other goroutines until
// the attempt commits.
//
// ## Reads
//
// A load checks that the stripe is unlocked and no newer than the attempt's read version, copies the stripe, then checks
// again. If either check fails the transaction object is marked aborted and every later load fails immediately. The body
// is expected to notice the failed load (Load returns false) and return; the engine discards the attempt and runs the
// body again on a fresh transaction object.
//
// ## Commits
//
// When a write body returns Ok the engine locks every stripe of the write-set in ascending address order, increments
// the global clock to obtain the write version, validates the read-set if any other commit happened since the attempt
// started, writes the buffered values and finally publishes the write version, which also releases the locks. A failure
// to lock or validate discards the attempt and retries it. Locks taken by an attempt which does not reach the final
// step are released before the attempt returns, whichever way it returns.
//
// ## Outcomes
//
// The body returns Ok(value), Retry or Abort. Ok commits (write) or returns (read) the value. Abort ends the call with
// ErrAborted. Retry ends the call with ErrRetry unless the attempt saw a conflict, in which case it is retried like any
// other conflicting attempt. The engine never blocks: a body which keeps conflicting is run again and again.
//
// Bodies may run many times. Side effects outside Load and Store, such as printing or mutating caller state, repeat on
// every attempt.
package stm
