// Package contract is the wire vocabulary shared by the ledger server, the
// mail client and the migrator.
//
// Every ledger operation is a Call naming a contract, a method and a list of
// positional params. Reads return a value; writes return a Receipt whose
// events are the only completion signal. Message tuples returned by reads
// are positional and their layout depends on the ledger's SchemaVersion:
//
//	V0: id, from, to, storageId, createdAt, wrappedKey, important, deleted
//	V1: V0 + read
//	V2: id, from, to, cc, createdAt, storageId, wrappedKey, important, deleted, read
//
// Byte strings travel as base64, integers as JSON numbers.
package contract
