// Package otp issues and verifies emailed one-time codes.
//
// Codes are short-lived shared secrets, so every check that touches one is
// constant time and every code is consumed at most once.
package otp
