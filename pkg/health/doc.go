/*
Package health implements the sink_connectiontest contract: a uniform
way for a resource synchronizer to report whether it can currently
reach the remote source it is configured against, independent of the
transport the synchronizer speaks underneath.

# Checkers

Checker is a strategy interface; HTTPChecker and TCPChecker are the
two transports the stack provides out of the box (a CalDAV/CardDAV/
WebDAV synchronizer wires an HTTPChecker against its base URL, an IMAP
synchronizer wires a TCPChecker against host:port). A synchronizer for
a transport neither covers implements Checker directly.

# Status and hysteresis

Status applies the same hysteresis a flapping network connection
needs: Retries consecutive failures before a resource is marked
unreachable, and a single success clears the streak. StartPeriod gives
a synchronizer still running its initial sync a grace period before
connection tests start counting against it.
*/
package health
