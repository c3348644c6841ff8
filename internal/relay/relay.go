// Package relay copies an upstream body to a client in bounded chunks.
package relay

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is used when Copy is given a non-positive chunk size.
const DefaultChunkSize = 32 * 1024

// ErrWrite wraps failures writing to the sink, e.g. a client that went away.
var ErrWrite = errors.New("relay: write to client")

// Sink receives relayed bytes.
//
// Start is called exactly once, before the first Write, or at end of stream
// when the body was empty. It is not called when the first read fails, so the
// caller can still answer with an error status.
type Sink interface {
	io.Writer
	Start()
	Flush()
}

// Copy reads src in chunks of at most chunkSize bytes and writes each chunk
// to dst in arrival order, flushing after every chunk so the client receives
// bytes before upstream finishes. It returns the number of bytes written and
// whether dst was started.
//
// ctx is checked between chunks. Cancelling it (client disconnect) ends the
// copy with ctx.Err(); the caller owns src and must close it to release the
// upstream connection.
func Copy(ctx context.Context, dst Sink, src io.Reader, chunkSize int) (written int64, started bool, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)

	start := func() {
		if !started {
			dst.Start()
			started = true
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return written, started, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			start()
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, started, errors.Join(ErrWrite, werr)
			}
			if wn != n {
				return written, started, errors.Join(ErrWrite, io.ErrShortWrite)
			}
			dst.Flush()
		}
		if rerr == io.EOF {
			start()
			return written, started, nil
		}
		if rerr != nil {
			return written, started, rerr
		}
	}
}
