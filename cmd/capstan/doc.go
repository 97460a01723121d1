// Package main hosts the Capstan CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into REST
// calls against the orchestrator, live event subscriptions over the stream
// connection, journal queries, and configuration scaffolding. It centralizes
// configuration resolution, client construction, and structured logging setup
// so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
// That separation keeps the CLI declarative while the transport and retry
// logic live in reusable components.
package main
