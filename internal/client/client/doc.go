// Package client contains the client-side building blocks shared by the
// SealMail CLI and the migrator.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) to talk
//     to the ledger server: Register/GetSalt/Login, Ping, contract Call and
//     Send, event history and live subscriptions, and presigned blob URLs.
//  2. A concrete gRPC implementation (see GRPCClient) that manages a
//     connection, injects an access token and a request id via interceptors,
//     transparently refreshes expired tokens, and maps status errors back to
//     the sentinels of package common.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations),
//     wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Domain failures come back as the errors of package common (match them with
// errors.Is or errors.As). Transport failures are reported as ErrUnavailable.
package client
