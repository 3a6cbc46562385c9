// Package passkey manages WebAuthn credentials and ceremony challenges.
//
// Challenges are stored only as hashes and resolve at most once, so a leaked
// database cannot be used to replay an in-flight ceremony.
package passkey
