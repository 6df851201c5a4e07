// Package realtime maintains the websocket channel that pushes task events.
//
// A Manager owns at most one live connection. It reconnects after the
// connection closes, waiting a fixed delay between attempts and giving up
// after a bounded number of consecutive attempts. The attempt counter resets
// once a connection opens. Disconnect cancels any pending reconnect.
//
// Connection status is read from the live connection handle, never from a
// separately maintained flag, so it cannot drift from the socket.
package realtime
