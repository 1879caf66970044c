// Package cli is the SealMail command-line client.
//
// It wires configuration, the local SQLite database, the ledger client and
// the mail service. Without a command it logs in, starts a background
// connectivity watcher and runs an interactive REPL; with a command
// ("sealmail send", "sealmail list sent", ...) it logs in, runs that one
// command and exits.
//
// Login is online first and falls back to the session stored by the last
// online login when the server is unreachable. Reading and sending mail
// needs the server; the private key always comes from the local key file.
package cli
