package singleinstance

// This file defines the API for single-instance ownership and delegation to
// the resident process.

import (
	"context"
)

// Mode is the first line a client sends after connecting.
type Mode string

const (
	ModeClipboard Mode = "CLIPBOARD"
	ModeStdout    Mode = "STDOUT"
	// ModeMessage is followed by one line of wire-format JSON.
	ModeMessage Mode = "MESSAGE"
)

// Server owns the TCP endpoint and answers delegated requests.
type Server interface {
	// Start begins listening on the first port of the configured range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	Request() Request
	// RespondSuccess sends success. Capture requests in clipboard mode send empty text.
	RespondSuccess(text string) error
	RespondError(msg string) error
	Close() error
}

// Request represents a single delegated client request.
type Request struct {
	Mode Mode
	// Message is the raw wire JSON for ModeMessage requests.
	Message []byte
}

// OutputToStdout reports whether a capture result should be written back as text.
func (r Request) OutputToStdout() bool { return r.Mode == ModeStdout }

// Client attempts to delegate to a resident server.
type Client interface {
	// TryRunOnce scans the port range, performs handshake, and asks the
	// resident for one capture. If no resident is found, returns delegated=false, err=nil.
	TryRunOnce(ctx context.Context, outputToStdout bool) (delegated bool, text string, err error)
	// SendMessage delivers one wire message and returns the resident's response JSON.
	SendMessage(ctx context.Context, raw []byte) (delegated bool, response []byte, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
