package server

import (
	"github.com/eternalApril/moonstone/internal/resp"
)

// commandContext is what a handler sees: the arguments after the command name,
// the engine and the session of the calling connection
type commandContext struct {
	name    string
	args    [][]byte
	engine  *Engine
	session *Session
	dirty   int64 // keyspace changes made by the handler
}

// key returns argument i as a key
func (c *commandContext) key(i int) string {
	return string(c.args[i])
}

// changed records n keyspace changes, which count towards the snapshot trigger
func (c *commandContext) changed(n int64) {
	c.dirty += n
}

type command interface {
	execute(ctx *commandContext) resp.Value
}

type commandFunc func(ctx *commandContext) resp.Value

func (c commandFunc) execute(ctx *commandContext) resp.Value {
	return c(ctx)
}

// Session is the per-connection state the dispatcher consults and updates.
// A nil *Session is an internal caller and bypasses authentication
type Session struct {
	authenticated bool
	closing       bool
}

// Authenticated reports whether AUTH succeeded on this connection
func (s *Session) Authenticated() bool {
	return s != nil && s.authenticated
}

// Closing reports whether the connection must be closed after the current reply
func (s *Session) Closing() bool {
	return s != nil && s.closing
}
