/*
Package session bridges one WebSocket connection to one pty-backed shell.

A Session owns its pty.Process and borrows the connection. Run drives the
duplex pump as three tasks in one errgroup:

	outbound  pty output -> one binary frame per read, in order
	inbound   binary frames -> pty input verbatim
	          text frames   -> resize control message, or pty input verbatim
	closer    once either loop ends: close frame, then a read deadline

When all three have returned the session tears down: the shell is asked to
terminate, given a grace period, then released. No channel I/O can be in
flight at that point.

Text frames are intercepted only when they parse as

	{"type":"resize","cols":80,"rows":24}

Anything else, including malformed JSON and other message types, reaches
the shell unmodified.

Sessions share nothing but metrics; a Registry tracks the live ones for
health reporting and shutdown.
*/
package session
