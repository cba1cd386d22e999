// Package pipe turns a push based byte feed into a blocking io.Reader with a bounded buffer.
package pipe

import (
	"errors"
	"io"
	"sync"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1024 * 1024

const readSize = 32 * 1024

// ErrClosedPipe is returned to the producer once the consumer closed the pipe.
var ErrClosedPipe = errors.New("pipe: read end closed")

// Pipe buffers at most capacity bytes between one producer and one consumer.
//
// The producer calls Write and finally CloseWithError. The consumer calls Read and Close.
// A Write blocks while the buffer is full, a Read blocks while it is empty.
type Pipe struct {
	mutex    sync.Mutex
	queue    [][]byte
	size     int
	capacity int

	done   bool
	err    error
	closed bool

	didPush chan struct{}
	didPull chan struct{}

	src       io.Closer
	closeOnce sync.Once
}

// New creates an empty pipe.
func New(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pipe{
		capacity: capacity,
		didPush:  make(chan struct{}),
		didPull:  make(chan struct{}),
	}
}

// FromReader starts copying src into a new pipe and returns the pipe right away.
// src is closed once it is exhausted, once it fails or once the pipe is closed.
func FromReader(src io.ReadCloser, capacity int) *Pipe {
	p := New(capacity)
	p.src = src
	go p.pump(src)
	return p
}

func (p *Pipe) pump(src io.Reader) {
	defer p.closeSource()

	buf := make([]byte, readSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := p.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err == io.EOF {
			p.CloseWithError(nil)
			return
		}
		if err != nil {
			p.CloseWithError(err)
			return
		}
	}
}

func (p *Pipe) closeSource() {
	p.closeOnce.Do(func() {
		if p.src != nil {
			_ = p.src.Close()
		}
	})
}

// Write copies b into the buffer. It blocks until there is room for b or until the consumer
// closes the pipe. A write larger than the capacity is accepted once the buffer is empty.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mutex.Lock()

	for !p.closed && p.size > 0 && p.size+len(b) > p.capacity {
		didPull := p.didPull
		p.mutex.Unlock()
		<-didPull
		p.mutex.Lock()
	}

	if p.closed {
		p.mutex.Unlock()
		return 0, ErrClosedPipe
	}
	if p.done {
		p.mutex.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(b) == 0 {
		p.mutex.Unlock()
		return 0, nil
	}

	chunk := make([]byte, len(b))
	copy(chunk, b)

	queueWasEmpty := len(p.queue) == 0
	p.queue = append(p.queue, chunk)
	p.size += len(chunk)

	if queueWasEmpty {
		p.notifyPush()
	}

	p.mutex.Unlock()
	return len(b), nil
}

// CloseWithError marks the end of the feed. A nil err makes Read return io.EOF once the buffer
// is drained; any other err is returned by the next Read and by Close.
func (p *Pipe) CloseWithError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.done || p.closed {
		return
	}
	p.done = true
	p.err = err
	p.notifyPush()
}

// Read blocks until data is buffered or the feed ended.
func (p *Pipe) Read(b []byte) (int, error) {
	p.mutex.Lock()

	for len(p.queue) == 0 && !p.done && !p.closed {
		didPush := p.didPush
		p.mutex.Unlock()
		<-didPush
		p.mutex.Lock()
	}

	if p.err != nil {
		err := p.err
		p.mutex.Unlock()
		return 0, err
	}
	if len(p.queue) == 0 {
		p.mutex.Unlock()
		return 0, io.EOF
	}
	if len(b) == 0 {
		p.mutex.Unlock()
		return 0, nil
	}

	n := 0
	for n < len(b) && len(p.queue) > 0 {
		c := copy(b[n:], p.queue[0])
		n += c
		if c == len(p.queue[0]) {
			p.queue[0] = nil
			p.queue = p.queue[1:]
		} else {
			p.queue[0] = p.queue[0][c:]
		}
	}
	p.size -= n
	p.notifyPull()

	p.mutex.Unlock()
	return n, nil
}

// Close releases the buffer and unblocks the producer. It is safe to call while the producer is
// still running and more than once. It returns the producer's error, if any.
func (p *Pipe) Close() error {
	p.mutex.Lock()
	if !p.closed {
		p.closed = true
		p.queue = nil
		p.size = 0
		p.notifyPull()
		p.notifyPush()
	}
	err := p.err
	p.mutex.Unlock()

	p.closeSource()
	return err
}

// Buffered returns the number of bytes waiting to be read.
func (p *Pipe) Buffered() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.size
}

func (p *Pipe) notifyPush() {
	close(p.didPush)
	p.didPush = make(chan struct{})
}

func (p *Pipe) notifyPull() {
	close(p.didPull)
	p.didPull = make(chan struct{})
}
