package session

import "errors"

var (
	// ErrControlParse marks a text frame that is not a resize control
	// message. It never leaves the package: the frame is forwarded as input.
	ErrControlParse = errors.New("not a control message")

	// ErrProcessExited ends a session whose shell is gone.
	ErrProcessExited = errors.New("process exited")

	// ErrDisconnected ends a session whose client went away.
	ErrDisconnected = errors.New("client disconnected")
)
