// Package mcp exposes the federation router to Model Context Protocol
// clients over JSON-RPC 2.0. It owns serialization and transport only;
// all query semantics live in the federation package.
package mcp
