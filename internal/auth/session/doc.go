// Package session orchestrates login flows and opaque session tokens.
//
// It is the only package that issues sessions; password, OTP, and passkey
// verification each feed into it as a factor.
package session
