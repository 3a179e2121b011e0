package resp

// CommandReader yields decoded commands as argument vectors
type CommandReader interface {
	ReadCommand() ([][]byte, error)
	Buffered() int
}

// ReplyWriter buffers replies until Flush is called
type ReplyWriter interface {
	Write(v Value) error
	Flush() error
}
