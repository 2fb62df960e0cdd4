package sipgoua

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/sipiface"
)

// callState tracks everything the binding needs for one in-progress dialog
// between OnIncomingCall and Detach.
type callState struct {
	req     *sip.Request
	tx      sip.ServerTransaction
	session *RTPSession
	sink    *RecorderSink
	codec   *Codec
	cancel  context.CancelFunc
}

// Binding implements sipiface.Library on top of emiago/sipgo, pion/rtp and
// zaf/g711. One Binding serves one Agent's media thread; its Library
// methods are only ever called from that thread, but sipgo's own
// transport goroutines invoke Callbacks asynchronously — callers are
// expected to bounce back onto the media thread via the CommandQueue
// before calling back into the Binding.
type Binding struct {
	mu sync.Mutex

	cfg       sipiface.LibraryConfig
	accounts  map[string]sipiface.AccountConfig
	calls     map[string]*callState
	codecs    []Codec
	portAlloc PortAllocator
	logger    commons.Logger
	callbacks sipiface.Callbacks

	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client

	nextSSRC uint32
}

// NewBinding creates a Binding. portAlloc should be a LocalPortAllocator
// for a single-instance Agent, or a RedisPortAllocator when multiple Agent
// processes share one RTP port range.
func NewBinding(portAlloc PortAllocator, callbacks sipiface.Callbacks, logger commons.Logger) *Binding {
	codecs := make([]Codec, len(SupportedCodecs))
	copy(codecs, SupportedCodecs)
	return &Binding{
		accounts:  make(map[string]sipiface.AccountConfig),
		calls:     make(map[string]*callState),
		codecs:    codecs,
		portAlloc: portAlloc,
		callbacks: callbacks,
		logger:    logger,
		nextSSRC:  1,
	}
}

// SetCallbacks replaces the Callbacks target. It exists because the
// natural owner of Callbacks (sipagent.Agent) is itself constructed with a
// reference to this Binding, so the two must be wired together after both
// exist: construct the Binding with a nil callbacks, construct the Agent
// with the Binding as its Library, then call SetCallbacks(agent).
func (b *Binding) SetCallbacks(callbacks sipiface.Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = callbacks
}

func (b *Binding) Create(cfg sipiface.LibraryConfig) error {
	b.cfg = cfg
	ua, err := sipgo.NewUA(sipgo.WithUserAgent("echomatrix/1.0"))
	if err != nil {
		return fmt.Errorf("sipgoua: create user agent: %w", err)
	}
	b.ua = ua
	return nil
}

func (b *Binding) Init(cfg sipiface.LibraryConfig) error {
	b.cfg = cfg
	return b.portAlloc.Init(context.Background())
}

func (b *Binding) Start() error {
	server, err := sipgo.NewServer(b.ua)
	if err != nil {
		return fmt.Errorf("sipgoua: create server: %w", err)
	}
	client, err := sipgo.NewClient(b.ua,
		sipgo.WithClientHostname(b.cfg.BoundAddress),
	)
	if err != nil {
		return fmt.Errorf("sipgoua: create client: %w", err)
	}
	b.server = server
	b.client = client

	server.OnInvite(b.onInvite)
	server.OnAck(b.onAck)
	server.OnBye(b.onBye)

	listenAddr := fmt.Sprintf("%s:%d", b.cfg.BoundAddress, b.cfg.PublicPort)
	go func() {
		if err := server.ListenAndServe(context.Background(), "udp", listenAddr); err != nil {
			b.logger.Errorw("sip server stopped", "error", err)
		}
	}()
	return nil
}

func (b *Binding) Destroy() error {
	b.mu.Lock()
	calls := make([]*callState, 0, len(b.calls))
	for _, c := range b.calls {
		calls = append(calls, c)
	}
	b.mu.Unlock()

	for _, c := range calls {
		if c.cancel != nil {
			c.cancel()
		}
		if c.session != nil {
			c.session.Close()
		}
	}
	b.portAlloc.ReleaseAll(context.Background())
	return nil
}

// HandleEvents exists for parity with poll-driven SIP stacks and test
// fakes; sipgo delivers OnInvite/OnAck/OnBye from its own transport
// goroutines rather than a pumped event loop, so this just yields for up
// to timeout and reports no events processed.
func (b *Binding) HandleEvents(timeout time.Duration) int {
	time.Sleep(timeout)
	return 0
}

func (b *Binding) CreateTransport(publicIP string, publicPort int, boundAddr string) error {
	b.cfg = sipiface.LibraryConfig{PublicIP: publicIP, PublicPort: publicPort, BoundAddress: boundAddr}
	return nil
}

func (b *Binding) CreateAccount(cfg sipiface.AccountConfig) (sipiface.AccountHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	b.accounts[cfg.ID] = cfg
	return cfg.ID, nil
}

func (b *Binding) Answer(call sipiface.CallHandle, status int) error {
	id, ok := call.(string)
	if !ok {
		return fmt.Errorf("sipgoua: invalid call handle %v", call)
	}

	b.mu.Lock()
	cs, ok := b.calls[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("sipgoua: unknown call %s", id)
	}

	b.mu.Lock()
	ourCodecs := make([]Codec, len(b.codecs))
	copy(ourCodecs, b.codecs)
	b.mu.Unlock()

	remote, err := ParseSDP(cs.req.Body())
	var codec *Codec
	if err == nil {
		codec = NegotiateCodec(ourCodecs, remote.PayloadTypes)
	} else {
		codec = &CodecPCMU
	}

	port, err := b.portAlloc.Allocate()
	if err != nil {
		return fmt.Errorf("sipgoua: allocate rtp port: %w", err)
	}

	b.mu.Lock()
	b.nextSSRC++
	ssrc := b.nextSSRC
	b.mu.Unlock()

	session, err := NewRTPSession(port, *codec, ssrc)
	if err != nil {
		b.portAlloc.Release(port)
		return err
	}
	if remote != nil {
		if err := session.SetRemote(remote.ConnectionIP, remote.AudioPort); err != nil {
			b.logger.Warnw("sipgoua: set remote rtp addr failed", "call_id", id, "error", err)
		}
	}

	sdp := GenerateSDP(NegotiatedSDPConfig(b.cfg.PublicIP, port, codec))
	resp := sip.NewResponseFromRequest(cs.req, sip.StatusCode(status), "OK", []byte(sdp))
	contentType := sip.ContentTypeHeader("application/sdp")
	resp.AppendHeader(&contentType)

	if err := cs.tx.Respond(resp); err != nil {
		session.Close()
		b.portAlloc.Release(port)
		return fmt.Errorf("sipgoua: respond to invite: %w", err)
	}

	b.mu.Lock()
	cs.session = session
	cs.codec = codec
	b.mu.Unlock()
	return nil
}

func (b *Binding) AttachRecorderSink(call sipiface.CallHandle) (io.WriteCloser, error) {
	id, ok := call.(string)
	if !ok {
		return nil, fmt.Errorf("sipgoua: invalid call handle %v", call)
	}

	b.mu.Lock()
	cs, ok := b.calls[id]
	b.mu.Unlock()
	if !ok || cs.session == nil {
		return nil, fmt.Errorf("sipgoua: call %s has no active media session", id)
	}

	sink := &RecorderSink{}
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	cs.sink = sink
	cs.cancel = cancel
	b.mu.Unlock()

	go func() {
		if err := cs.session.ReadLoop(ctx, sink); err != nil && err != context.Canceled {
			b.logger.Warnw("sipgoua: rtp read loop ended", "call_id", id, "error", err)
		}
	}()

	return sink, nil
}

func (b *Binding) AttachPlayerSource(call sipiface.CallHandle, r io.Reader, sampleRate int) error {
	id, ok := call.(string)
	if !ok {
		return fmt.Errorf("sipgoua: invalid call handle %v", call)
	}

	b.mu.Lock()
	cs, ok := b.calls[id]
	b.mu.Unlock()
	if !ok || cs.session == nil {
		return fmt.Errorf("sipgoua: call %s has no active media session", id)
	}

	go func() {
		if err := cs.session.WriteFrom(context.Background(), r); err != nil {
			b.logger.Warnw("sipgoua: rtp write loop ended", "call_id", id, "error", err)
		}
	}()
	return nil
}

func (b *Binding) Detach(call sipiface.CallHandle) error {
	id, ok := call.(string)
	if !ok {
		return fmt.Errorf("sipgoua: invalid call handle %v", call)
	}

	b.mu.Lock()
	cs, ok := b.calls[id]
	delete(b.calls, id)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	if cs.cancel != nil {
		cs.cancel()
	}
	if cs.sink != nil {
		cs.sink.Close()
	}
	if cs.session != nil {
		port := cs.session.LocalPort()
		cs.session.Close()
		b.portAlloc.Release(port)
	}
	return nil
}

func (b *Binding) SetCodecPriority(codec string, priority int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := -1
	for i, c := range b.codecs {
		if c.Name == codec {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("sipgoua: unknown codec %s", codec)
	}
	if priority <= 0 || priority > len(b.codecs) {
		return nil
	}
	c := b.codecs[idx]
	b.codecs = append(b.codecs[:idx], b.codecs[idx+1:]...)
	pos := priority - 1
	b.codecs = append(b.codecs[:pos], append([]Codec{c}, b.codecs[pos:]...)...)
	return nil
}

// SetNullAudioDevice is a no-op: this binding never touches a physical
// audio device, audio always flows over RTP.
func (b *Binding) SetNullAudioDevice() error {
	return nil
}

func (b *Binding) ScheduleTimer(d time.Duration) (int, <-chan struct{}) {
	b.mu.Lock()
	b.nextSSRC++ // reuse as a monotonically increasing id source
	timerID := int(b.nextSSRC)
	b.mu.Unlock()

	done := make(chan struct{})
	time.AfterFunc(d, func() {
		close(done)
		if b.callbacks != nil {
			b.callbacks.OnTimer(timerID)
		}
	})
	return timerID, done
}

func (b *Binding) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	id := req.CallID().Value()

	b.mu.Lock()
	_, already := b.calls[id]
	if !already {
		b.calls[id] = &callState{req: req, tx: tx}
	}
	b.mu.Unlock()

	// A retransmitted INVITE for a dialog we already accepted (no ACK yet)
	// needs no new OnIncomingCall callback; overwriting the existing
	// callState here would leak its RTP port and read-loop goroutine.
	if already {
		return
	}

	remoteURI := ""
	if from := req.From(); from != nil {
		remoteURI = from.Address.String()
	}
	if b.callbacks != nil {
		b.callbacks.OnIncomingCall(id, remoteURI)
	}
}

func (b *Binding) onAck(req *sip.Request, tx sip.ServerTransaction) {
	id := req.CallID().Value()
	b.mu.Lock()
	_, ok := b.calls[id]
	b.mu.Unlock()
	if !ok || b.callbacks == nil {
		return
	}
	b.callbacks.OnCallState(id, sipiface.CallStateConfirmed)
	b.callbacks.OnCallMediaState(id)
}

func (b *Binding) onBye(req *sip.Request, tx sip.ServerTransaction) {
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	tx.Respond(resp)

	id := req.CallID().Value()
	if b.callbacks != nil {
		b.callbacks.OnCallState(id, sipiface.CallStateDisconnected)
	}
}
