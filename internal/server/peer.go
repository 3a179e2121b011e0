package server

import (
	"net"
	"sync"

	"github.com/eternalApril/moonstone/internal/resp"
)

// Peer represents a connected client.
// It wraps a network connection and provides synchronized methods for reading and writing RESP-encoded data
type Peer struct {
	conn    net.Conn
	reader  resp.CommandReader
	writer  resp.ReplyWriter
	mu      sync.Mutex
	session Session
}

// NewPeer initializes a new client peer from a network connection.
// maxPacket bounds a single command, 0 selects resp.DefaultMaxPacket
func NewPeer(conn net.Conn, maxPacket int) *Peer {
	if maxPacket <= 0 {
		maxPacket = resp.DefaultMaxPacket
	}
	return &Peer{
		conn:   conn,
		reader: resp.NewDecoderLimit(conn, maxPacket),
		writer: resp.NewEncoder(conn),
	}
}

// Send encodes and writes a RESP value to the client.
// This method is thread-safe and can be called from multiple goroutines
func (p *Peer) Send(v resp.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// ReadCommand reads the next command from the client's input stream, name first
func (p *Peer) ReadCommand() ([][]byte, error) {
	return p.reader.ReadCommand()
}

// Session returns the connection state used by the dispatcher
func (p *Peer) Session() *Session {
	return &p.session
}

// Close terminates the underlying network connection
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Flush sends all buffered data to the client
func (p *Peer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// InputBuffered returns the number of bytes that can be read from the current buffer
func (p *Peer) InputBuffered() int {
	return p.reader.Buffered()
}
