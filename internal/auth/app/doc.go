// Package server composes and runs the identity process boundary.
//
// It hosts the JSON bridge over a single SQLite store so every
// authentication decision is made from one source of truth.
package server
