// Package registry discovers supported DSP devices and dispatches
// profile operations to the right protocol codec.
//
// Enumeration goes through a transport.Enumerator so tests and
// platform backends plug in the same way. Matched devices get stable
// zero-based indices in enumeration order; the index is only a
// selection key, identity on the wire is the interface path.
//
// A Handle is an open session with one device: a transport, a codec
// and a transactor bound together under a UUID that correlates log
// events. At most one handle per physical device is open at a time.
package registry
