package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Wire framing constants for NetChunkTransport. Every frame is:
//
//	magic (8 bytes) | length (8 bytes, big-endian) | payload (length bytes, JSON) | checksum (8 bytes, big-endian)
//
// where checksum is the xxhash64 digest of the payload. This is the
// magic-bytes-plus-length-prefix-plus-trailing-checksum idiom of framed
// file formats, applied here to a byte stream instead of a file.
const (
	frameMagic      = "SNAPCHNK"
	frameMagicSize  = 8
	frameLengthSize = 8
	frameSumSize    = 8

	// maxFrameLength bounds a single frame's payload, guarding against a
	// corrupt or hostile length prefix driving an unbounded allocation.
	maxFrameLength = 256 << 20
)

var (
	errBadMagic      = errors.New("snapshot: invalid frame magic")
	errFrameTooLarge = errors.New("snapshot: frame length exceeds maximum")
	errFrameChecksum = errors.New("snapshot: frame checksum mismatch")
)

// writeFrame writes one length-prefixed, checksummed chunk frame to w.
func writeFrame(w io.Writer, chunk *Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("snapshot: marshal chunk: %w", err)
	}

	header := make([]byte, frameMagicSize+frameLengthSize)
	copy(header, frameMagic)
	binary.BigEndian.PutUint64(header[frameMagicSize:], uint64(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("snapshot: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("snapshot: write frame payload: %w", err)
	}

	trailer := make([]byte, frameSumSize)
	binary.BigEndian.PutUint64(trailer, xxhash.Sum64(payload))
	if _, err := w.Write(trailer); err != nil {
		return fmt.Errorf("snapshot: write frame trailer: %w", err)
	}
	return nil
}

// readFrame reads and validates one chunk frame from r.
func readFrame(r io.Reader) (*Chunk, error) {
	header := make([]byte, frameMagicSize+frameLengthSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if string(header[:frameMagicSize]) != frameMagic {
		return nil, errBadMagic
	}

	length := binary.BigEndian.Uint64(header[frameMagicSize:])
	if length > maxFrameLength {
		return nil, errFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("snapshot: read frame payload: %w", err)
	}

	trailer := make([]byte, frameSumSize)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, fmt.Errorf("snapshot: read frame trailer: %w", err)
	}
	if binary.BigEndian.Uint64(trailer) != xxhash.Sum64(payload) {
		return nil, errFrameChecksum
	}

	var chunk Chunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal chunk: %w", err)
	}
	return &chunk, nil
}

// NetChunkTransport sends chunks over plain TCP connections, one
// connection per Send call. It is the reference transport for a real
// multi-process deployment; LoopbackTransport covers the in-process and
// test case.
type NetChunkTransport struct {
	dialTimeout time.Duration
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewNetChunkTransport returns a NetChunkTransport that dials targets
// directly with net.Dial. dialTimeout bounds connection setup; zero means
// no explicit timeout beyond ctx's own deadline.
func NewNetChunkTransport(dialTimeout time.Duration) *NetChunkTransport {
	dialer := &net.Dialer{Timeout: dialTimeout}
	return &NetChunkTransport{
		dialTimeout: dialTimeout,
		dial:        dialer.DialContext,
	}
}

// Send implements ChunkTransport by dialing target (host:port) and writing
// a single framed chunk.
func (t *NetChunkTransport) Send(ctx context.Context, target string, chunk *Chunk) error {
	conn, err := t.dial(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("snapshot: dial %s: %w", target, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	return writeFrame(conn, chunk)
}

// NetChunkServer accepts inbound connections and hands each framed chunk to
// a ChunkReceiver. One connection carries exactly one chunk, mirroring
// Send's one-chunk-per-connection behavior.
type NetChunkServer struct {
	listener net.Listener
	receiver ChunkReceiver
	source   string
}

// NewNetChunkServer wraps an already-bound listener. source identifies the
// peer for ChunkReceiver.ReceiveChunk, since plain TCP gives no higher-level
// peer identity.
func NewNetChunkServer(listener net.Listener, receiver ChunkReceiver, source string) *NetChunkServer {
	return &NetChunkServer{listener: listener, receiver: receiver, source: source}
}

// Serve accepts connections until ctx is done or the listener is closed.
func (s *NetChunkServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *NetChunkServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	chunk, err := readFrame(conn)
	if err != nil {
		return
	}
	_ = s.receiver.ReceiveChunk(ctx, s.source, chunk)
}
