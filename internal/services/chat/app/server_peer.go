package server

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	outboundQueueSize = 64
	drainPollInterval = 5 * time.Millisecond
)

var (
	errPeerClosed   = errors.New("peer is closed")
	errPeerOverflow = errors.New("peer outbound queue overflow")
)

// wsPeer writes frames from a bounded queue on its own goroutine so a slow
// client never stalls a room. Overflow closes the connection.
type wsPeer struct {
	conn      io.Closer
	encoder   *json.Encoder
	queue     chan wsFrame
	pending   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func newWSPeer(conn io.WriteCloser, queueSize int) *wsPeer {
	if queueSize <= 0 {
		queueSize = outboundQueueSize
	}
	p := &wsPeer{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		queue:   make(chan wsFrame, queueSize),
		done:    make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// Send enqueues frame without blocking.
func (p *wsPeer) Send(frame wsFrame) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}
	p.pending.Add(1)
	select {
	case p.queue <- frame:
		return nil
	default:
		p.pending.Add(-1)
		p.Close()
		return errPeerOverflow
	}
}

// Close stops the writer and closes the connection.
func (p *wsPeer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *wsPeer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Drain waits up to timeout for queued frames to be written, then closes.
func (p *wsPeer) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for p.pending.Load() > 0 && time.Now().Before(deadline) && !p.closed() {
		time.Sleep(drainPollInterval)
	}
	p.Close()
}

func (p *wsPeer) writeLoop() {
	for {
		select {
		case frame := <-p.queue:
			err := p.encoder.Encode(frame)
			p.pending.Add(-1)
			if err != nil {
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}
