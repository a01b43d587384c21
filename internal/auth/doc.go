// Package auth verifies the exhibitor a station records consent for.
//
// Verification is delegated to the relay's /api/auth route. A successful
// login caches the exhibitor identity in the queue store's slots so the
// station can start offline later, but only for that same exhibitor id:
// an id never verified online cannot log in offline.
package auth
