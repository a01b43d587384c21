// Package camera provides the decode sources a station scans from.
//
// A Camera starts a Stream that yields decoded code text line by line.
// ExecCamera runs an external decoder such as zbarcam and reads its stdout.
// LineCamera reads codes typed by a USB keyboard-wedge reader. Start failures
// wrap ErrUnavailable with the underlying reason intact so the operator sees
// exactly why the camera could not be acquired.
package camera
