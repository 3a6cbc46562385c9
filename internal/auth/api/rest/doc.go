// Package rest exposes the identity core over a thin JSON bridge.
//
// Handlers translate HTTP to manager calls and domain errors to status codes;
// no authentication rule lives here.
package rest
