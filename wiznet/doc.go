// Package wiznet implements a request/response client for instruments that sit
// behind a serial-to-Ethernet bridge (such as a Wiznet module) speaking a
// line-oriented text protocol.
//
// The bridge offers no persistent session: it accepts a TCP connection, relays
// whatever is written to the serial line and relays the instrument's answer
// back. It is also timing sensitive, dropping writes issued too soon after the
// connection is accepted, and can leave stale bytes from an earlier aborted
// exchange in its buffer. The client therefore performs every exchange on a
// freshly opened connection:
//
//  1. dial and wait the settle delay
//  2. drain stale bytes and wait the settle delay
//  3. send command + linebreak and wait the settle delay
//  4. read one reply (at most ReadBufferSize bytes)
//  5. validate and strip the trailing linebreak + prompt
//  6. half-close, wait the close delay, close
//
// Dial, send and read failures are transport failures and restart the cycle,
// up to the configured retry limit, after which [ErrRetriesExhausted] is
// returned. A reply that arrives but does not end with linebreak + prompt is a
// [FramingError]: it means the instrument is in an unexpected state, so it is
// returned immediately and never retried.
//
// A Client runs at most one exchange at a time. Use one Client per device.
package wiznet
