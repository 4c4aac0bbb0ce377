package netutil

import (
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDialError(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}

	assert.True(t, IsDialError(dial))
	assert.True(t, IsDialError(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}))
	assert.True(t, IsDialError(&net.DNSError{Err: "no such host", Name: "api.telegram.org"}))
	assert.False(t, IsDialError(read))
	assert.False(t, ShouldRetry(nil))
	assert.True(t, ShouldRetry(dial))
}
