// Package scanner implements the consent scan state machine.
//
// A Machine walks Idle, CameraStarting, Scanning, Locked, AwaitingConsent,
// Submitting, Result and back to Idle. The first decode while Scanning takes
// the lock; every later decode is ignored until Reset. ManualEntry lets an
// operator type a ticket id instead. Consent builds an immutable ScanEvent
// from the values captured at that instant and hands it to the submission
// pipeline, which never fails the operator: the machine always reaches
// Result with a message.
package scanner
