// Package cli provides the interactive chatsync command-line client.
//
// It wires configuration, the remote store (a relay over gRPC or an
// embedded backend), local state, the chat services and an interactive
// REPL. Typical flow: restore the saved user or prompt for credentials,
// start a background connectivity watcher, then execute user commands while
// incoming messages are printed as they arrive.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
