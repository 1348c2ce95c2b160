// Package reporting fans supervisor events out to observers.
//
// Every notable occurrence in a supervised tool server (a diagnostic line,
// a lifecycle change, a completed handshake, a protocol message) becomes an
// Event. The Sink delivers each Event synchronously to every subscribed
// Observer. Observers must not block; the ones provided here either buffer
// with drop-on-full semantics or only log.
package reporting
