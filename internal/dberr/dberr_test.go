package dberr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Newf(NotFound, "member %q missing", "x")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrTypeMismatch))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, NotFound, KindOf(wrapped))
}

func TestReplyTags(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{ErrTypeMismatch, "WRONGTYPE Operation against a key holding the wrong kind of value"},
		{ErrNotAuthorized, "NOAUTH Authentication required."},
		{WrongArgs("get"), "ERR wrong number of arguments for 'get' command"},
		{ErrSyntax, "ERR syntax error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Reply())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(Persistence, io.ErrUnexpectedEOF, "read snapshot")

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, "read snapshot: unexpected EOF", err.Error())
	assert.Equal(t, Internal, KindOf(io.EOF))
}
