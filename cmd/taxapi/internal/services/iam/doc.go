// Package iam resolves inbound requests to an authenticated Principal and answers
// role and region authorization questions about it.
//
// Resolution tries credential sources in a fixed order and stops at the first one
// that produces a principal:
//
//  1. Server-side session (SessionStore, cookie taxdesk.session-token)
//  2. Framework stateless token (encrypted JWT in the same cookie)
//  3. Custom signed token (HS256, cookie "token")
//
// A source with nothing to offer, or with an invalid or expired credential, hands
// over to the next one. Only an unreachable backing store aborts resolution, with
// an error matching ErrInfrastructure, so outages are never reported as denials.
//
// The Diagnoser decodes session cookies without verification for support
// tooling. It is not part of the chain and its output must not be used to grant
// access.
//
// Request flow:
//
//	Request → MultiAuth → Service.AuthenticateRequest → Principal
//	       ↓
//	   Handler → RequireRole / RequireRegion / Authorizer
package iam
