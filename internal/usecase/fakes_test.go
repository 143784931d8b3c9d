package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parley/internal/domain"
	"parley/internal/ports"
)

var errFakeClosed = errors.New("fake transport closed")

type fakeTransport struct {
	mu      sync.Mutex
	binary  [][]byte
	texts   []string
	sendErr error

	inbound   chan domain.InboundMessage
	done      chan struct{}
	closeOnce sync.Once
	waitErr   error
	onClose   func()
}

func newFakeTransport(onClose func()) *fakeTransport {
	return &fakeTransport{
		inbound: make(chan domain.InboundMessage, 16),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (t *fakeTransport) SendBinary(chunk []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed() {
		return errFakeClosed
	}
	t.binary = append(t.binary, append([]byte(nil), chunk...))
	return nil
}

func (t *fakeTransport) SendText(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.isClosed() {
		return errFakeClosed
	}
	t.texts = append(t.texts, text)
	return nil
}

func (t *fakeTransport) Inbound() <-chan domain.InboundMessage { return t.inbound }

func (t *fakeTransport) Wait() error {
	<-t.done
	return t.waitErr
}

func (t *fakeTransport) Close() error {
	t.shutdown(nil)
	return nil
}

// remoteClose simulates the backend ending the connection.
func (t *fakeTransport) remoteClose(err error) {
	t.shutdown(err)
}

func (t *fakeTransport) shutdown(err error) {
	t.closeOnce.Do(func() {
		t.waitErr = err
		close(t.inbound)
		close(t.done)
		if t.onClose != nil {
			t.onClose()
		}
	})
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) closed() bool { return t.isClosed() }

func (t *fakeTransport) sentBinary() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.binary...)
}

func (t *fakeTransport) sentTexts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.texts...)
}

// resourceCounter tracks how many resources of one kind are open at once.
type resourceCounter struct {
	mu      sync.Mutex
	open    int
	maxOpen int
}

func (r *resourceCounter) acquire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open++
	if r.open > r.maxOpen {
		r.maxOpen = r.open
	}
}

func (r *resourceCounter) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open--
}

func (r *resourceCounter) snapshot() (open int, maxOpen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open, r.maxOpen
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	modes      []domain.Mode
	err        error
	// gate, when set, holds Dial until closed and ignores ctx, like a slow handshake.
	gate chan struct{}

	counter resourceCounter
}

func (d *fakeDialer) Dial(ctx context.Context, mode domain.Mode) (ports.Transport, error) {
	d.mu.Lock()
	d.modes = append(d.modes, mode)
	err := d.err
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	d.counter.acquire()
	var once sync.Once
	transport := newFakeTransport(func() { once.Do(d.counter.release) })
	d.mu.Lock()
	d.transports = append(d.transports, transport)
	d.mu.Unlock()
	return transport, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.modes)
}

func (d *fakeDialer) transport(t *testing.T, index int) *fakeTransport {
	t.Helper()
	var transport *fakeTransport
	waitFor(t, "transport to be dialed", func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.transports) > index {
			transport = d.transports[index]
			return true
		}
		return false
	})
	return transport
}

type fakeCaptureSession struct {
	feed      chan []byte
	stopped   chan struct{}
	stopOnce  sync.Once
	readCalls atomic.Int32
	failWith  chan error
	onStop    func()
}

func newFakeCaptureSession(onStop func()) *fakeCaptureSession {
	return &fakeCaptureSession{
		feed:     make(chan []byte),
		stopped:  make(chan struct{}),
		failWith: make(chan error, 1),
		onStop:   onStop,
	}
}

func (s *fakeCaptureSession) Read(p []byte) (int, error) {
	s.readCalls.Add(1)
	select {
	case chunk := <-s.feed:
		return copy(p, chunk), nil
	case err := <-s.failWith:
		return 0, err
	case <-s.stopped:
		return 0, io.EOF
	}
}

func (s *fakeCaptureSession) Close() error { return s.Stop() }

func (s *fakeCaptureSession) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.onStop != nil {
			s.onStop()
		}
	})
	return nil
}

func (s *fakeCaptureSession) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

type fakeCaptureSource struct {
	mu       sync.Mutex
	sessions []*fakeCaptureSession
	configs  []ports.CaptureConfig
	err      error

	counter resourceCounter
}

func (c *fakeCaptureSource) Start(_ context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, cfg)
	if c.err != nil {
		return nil, c.err
	}
	c.counter.acquire()
	session := newFakeCaptureSession(c.counter.release)
	c.sessions = append(c.sessions, session)
	return session, nil
}

func (c *fakeCaptureSource) session(t *testing.T, index int) *fakeCaptureSession {
	t.Helper()
	var session *fakeCaptureSession
	waitFor(t, "capture to start", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.sessions) > index {
			session = c.sessions[index]
			return true
		}
		return false
	})
	return session
}

func (c *fakeCaptureSource) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.configs)
}

type fakePlayer struct {
	mu     sync.Mutex
	units  [][]byte
	errs   []error
	active int
	// overlapped records whether Play was ever entered while another unit was playing.
	overlapped bool
	// release, when set, holds each Play until a value is received.
	release chan struct{}
}

func (p *fakePlayer) Play(ctx context.Context, unit []byte) error {
	p.mu.Lock()
	if p.active > 0 {
		p.overlapped = true
	}
	p.active++
	index := len(p.units)
	p.units = append(p.units, append([]byte(nil), unit...))
	release := p.release
	var err error
	if index < len(p.errs) {
		err = p.errs[index]
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePlayer) played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.units...)
}

func (p *fakePlayer) sawOverlap() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlapped
}

type recordingObserver struct {
	mu            sync.Mutex
	opens         int
	closes        int
	texts         []string
	frames        []domain.ImageFrame
	errors        []string
	captureErrors []string
	states        []domain.Status
}

func (o *recordingObserver) OnOpen() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
}

func (o *recordingObserver) OnTextMessage(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
}

func (o *recordingObserver) OnImageFrame(frame domain.ImageFrame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, frame)
}

func (o *recordingObserver) OnClose() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
}

func (o *recordingObserver) OnError(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, message)
}

func (o *recordingObserver) OnCaptureError(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.captureErrors = append(o.captureErrors, message)
}

func (o *recordingObserver) OnStateChanged(status domain.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, status)
}

func (o *recordingObserver) snapshot() recordingObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return recordingObserver{
		opens:         o.opens,
		closes:        o.closes,
		texts:         append([]string(nil), o.texts...),
		frames:        append([]domain.ImageFrame(nil), o.frames...),
		errors:        append([]string(nil), o.errors...),
		captureErrors: append([]string(nil), o.captureErrors...),
		states:        append([]domain.Status(nil), o.states...),
	}
}

type fakeRules struct {
	replace map[string]string
	err     error
}

func (r fakeRules) Apply(text string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if out, ok := r.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type fakeClipboard struct {
	mu       sync.Mutex
	lastText string
	err      error
}

func (c *fakeClipboard) SetText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.lastText = text
	return nil
}

// manualTicker lets tests decide when the flush cadence fires.
type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("flush tick was not consumed")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
