package resp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/eternalApril/moonstone/internal/dberr"
)

// Protocol limits
const (
	// MaxArrayLen limits the number of elements in a request array
	MaxArrayLen = 1024 * 1024

	// DefaultMaxPacket is used when no packet limit is configured
	DefaultMaxPacket = 512 * 1024 * 1024

	// maxLengthLine bounds "*<n>\r\n" and "$<n>\r\n" headers
	maxLengthLine = 32

	readChunk = 16 * 1024
)

var (
	// ErrPacketTooLarge is wrapped by the error returned when a command exceeds the packet limit
	ErrPacketTooLarge = errors.New("packet exceeds max_packet")
)

func protoErr(format string, args ...any) error {
	return dberr.Wrap(dberr.Protocol, fmt.Errorf(format, args...), "Protocol error")
}

func tooLarge() error {
	return dberr.Wrap(dberr.Protocol, ErrPacketTooLarge, "Protocol error")
}

// Parse decodes every complete command at the front of buf and returns them with the
// unconsumed tail. A command split across reads stays in rest untouched.
// limit bounds the encoded size of a single command; zero means DefaultMaxPacket.
// Commands returned before an error are valid and must still be executed
func Parse(buf []byte, limit int) (cmds [][][]byte, rest []byte, err error) {
	p := parser{limit: normLimit(limit)}

	for len(buf) > 0 {
		args, n, done, err := p.next(buf)
		if err != nil {
			return cmds, buf, err
		}
		if !done {
			break
		}
		buf = buf[n:]
		if args != nil {
			cmds = append(cmds, args)
		}
	}

	return cmds, buf, nil
}

func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultMaxPacket
	}
	return limit
}

// parser decodes one command at a time. The elements of an array that is only partly
// received are kept between calls, so every byte of input is copied once
type parser struct {
	limit int

	args  [][]byte // elements of the open array
	count int64    // elements the open array declares, 0 when none is open
	size  int64    // payload bytes in args
	read  int      // encoded bytes absorbed into the open array by earlier calls
}

func (p *parser) open() bool {
	return p.count > 0
}

func (p *parser) reset() {
	p.args, p.count, p.size, p.read = nil, 0, 0, 0
}

// next decodes from the front of buf. With done set it returns a command (nil for an empty
// one) and its length. Otherwise n bytes were absorbed into the open array and the caller
// must drop them and retry with more input
func (p *parser) next(buf []byte) (args [][]byte, n int, done bool, err error) {
	if !p.open() {
		if buf[0] != TypeArray {
			args, n, err := parseInline(buf, p.limit)
			return args, n, n > 0, err
		}

		count, pos, ok, err := parseLengthLine(buf, 0)
		if err != nil {
			return nil, 0, false, err
		}
		if !ok {
			return nil, 0, false, p.incomplete(buf)
		}
		if count <= 0 {
			return nil, pos, true, nil
		}
		if count > MaxArrayLen {
			return nil, 0, false, protoErr("invalid multibulk length")
		}

		p.reset()
		p.count = count
		p.args = make([][]byte, 0, min(count, 64))
		n = pos
	}

	for int64(len(p.args)) < p.count {
		if n >= len(buf) {
			return p.absorb(buf, n)
		}
		if buf[n] != TypeBulkString {
			return nil, 0, false, protoErr("expected '$', got '%c'", buf[n])
		}

		l, next, ok, err := parseLengthLine(buf, n)
		if err != nil {
			return nil, 0, false, err
		}
		if !ok {
			return p.absorb(buf, n)
		}
		if l < 0 {
			return nil, 0, false, protoErr("invalid bulk length")
		}
		if p.size+l > int64(p.limit) {
			return nil, 0, false, tooLarge()
		}

		end := next + int(l)
		if end+2 > len(buf) {
			return p.absorb(buf, n)
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, false, protoErr("invalid bulk terminator")
		}

		p.args = append(p.args, append([]byte(nil), buf[next:end]...))
		p.size += l
		n = end + 2
	}

	args = p.args
	p.reset()
	return args, n, true, nil
}

// absorb keeps the first n bytes of buf in the open array and asks for more input
func (p *parser) absorb(buf []byte, n int) ([][]byte, int, bool, error) {
	if err := p.incomplete(buf); err != nil {
		return nil, 0, false, err
	}
	p.read += n
	return nil, n, false, nil
}

// incomplete reports a pending partial frame, or an error once it is already over the limit
func (p *parser) incomplete(buf []byte) error {
	if p.read+len(buf) > p.limit {
		return tooLarge()
	}
	return nil
}

// parseInline handles "SET k v\r\n" style commands typed by hand
func parseInline(buf []byte, limit int) ([][]byte, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > limit {
			return nil, 0, tooLarge()
		}
		return nil, 0, nil
	}
	if i > limit {
		return nil, 0, tooLarge()
	}

	line := bytes.TrimRight(buf[:i], "\r")
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, i + 1, nil
	}

	args := make([][]byte, len(fields))
	for j, f := range fields {
		args[j] = append([]byte(nil), f...)
	}
	return args, i + 1, nil
}

// parseLengthLine reads "<prefix><int>\r\n" starting at pos
func parseLengthLine(buf []byte, pos int) (n int64, next int, ok bool, err error) {
	end := bytes.IndexByte(buf[pos:], '\n')
	if end < 0 {
		if len(buf)-pos > maxLengthLine {
			return 0, 0, false, protoErr("length line too long")
		}
		return 0, 0, false, nil
	}
	end += pos

	if end-pos < 2 || buf[end-1] != '\r' {
		return 0, 0, false, protoErr("missing CRLF")
	}

	n, perr := strconv.ParseInt(string(buf[pos+1:end-1]), 10, 64)
	if perr != nil {
		return 0, 0, false, protoErr("invalid length %q", buf[pos+1:end-1])
	}

	return n, end + 1, true, nil
}

// Decoder reads commands from a stream. Input is read straight into buf and decoded once;
// only the unconsumed tail is moved to the front
type Decoder struct {
	rd      io.Reader
	p       parser
	buf     []byte
	pending [][][]byte
	err     error
}

// NewDecoder creates a decoder with the default packet limit
func NewDecoder(rd io.Reader) *Decoder {
	return NewDecoderLimit(rd, DefaultMaxPacket)
}

// NewDecoderLimit creates a decoder that rejects commands larger than limit bytes
func NewDecoderLimit(rd io.Reader, limit int) *Decoder {
	return &Decoder{
		rd:  rd,
		p:   parser{limit: normLimit(limit)},
		buf: make([]byte, 0, readChunk),
	}
}

// ReadCommand returns the next command in arrival order
func (d *Decoder) ReadCommand() ([][]byte, error) {
	for {
		if len(d.pending) > 0 {
			cmd := d.pending[0]
			d.pending[0] = nil
			d.pending = d.pending[1:]
			return cmd, nil
		}

		if d.err != nil {
			return nil, d.err
		}

		n, err := d.fill()
		if n > 0 {
			d.decode()
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && (len(d.buf) > 0 || d.p.open()) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// fill performs one read into the spare capacity of buf
func (d *Decoder) fill() (int, error) {
	if cap(d.buf)-len(d.buf) < readChunk {
		d.buf = slices.Grow(d.buf, readChunk)
	}
	n, err := d.rd.Read(d.buf[len(d.buf):cap(d.buf)])
	d.buf = d.buf[:len(d.buf)+n]
	return n, err
}

// decode queues every complete command in buf and drops the bytes the parser consumed
func (d *Decoder) decode() {
	off := 0
	for off < len(d.buf) {
		args, n, done, err := d.p.next(d.buf[off:])
		off += n
		if err != nil {
			d.err = err
			break
		}
		if !done {
			break
		}
		if args != nil {
			d.pending = append(d.pending, args)
		}
	}

	if off > 0 {
		d.buf = d.buf[:copy(d.buf, d.buf[off:])]
	}
}

// Buffered returns the amount of input already received but not yet returned
func (d *Decoder) Buffered() int {
	return len(d.pending) + len(d.buf) + d.p.read
}
