package scale

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chaz8081/renpho-ble/internal/ble/protocol"
)

var errFakeRadio = errors.New("fake radio failure")

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeWrite struct {
	char string
	data []byte
}

// fakeLink records writes and subscriptions and lets tests push
// notifications. It also implements Conn for the Scale tests.
type fakeLink struct {
	mu         sync.Mutex
	writes     []fakeWrite
	writeErr   map[string]error
	subscribed map[string]func([]byte)
	subCalls   int
	subErr     map[string]error

	connected  bool
	connects   int
	connectErr error
	lost       []func()
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		writeErr:   make(map[string]error),
		subscribed: make(map[string]func([]byte)),
		subErr:     make(map[string]error),
	}
}

func (f *fakeLink) Write(_, char string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[char]; err != nil {
		return err
	}
	f.writes = append(f.writes, fakeWrite{char: char, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeLink) Subscribe(_, char string, fn func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	if err := f.subErr[char]; err != nil {
		return err
	}
	f.subscribed[char] = fn
	return nil
}

func (f *fakeLink) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	f.connected = true
	return nil
}

func (f *fakeLink) Disconnect() error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil
	}
	f.connected = false
	lost := append([]func(){}, f.lost...)
	f.mu.Unlock()
	for _, fn := range lost {
		fn()
	}
	return nil
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) OnConnectionLost(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = append(f.lost, fn)
}

// dropPeer simulates the scale going away.
func (f *fakeLink) dropPeer() {
	_ = f.Disconnect()
}

func (f *fakeLink) setWriteErr(char string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr[char] = err
}

// notify delivers data to the handler subscribed on char.
func (f *fakeLink) notify(char string, data []byte) {
	f.mu.Lock()
	fn := f.subscribed[char]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (f *fakeLink) writesTo(char string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, w := range f.writes {
		if w.char == char {
			out = append(out, w.data)
		}
	}
	return out
}

func (f *fakeLink) wrote(char string, data []byte) bool {
	for _, w := range f.writesTo(char) {
		if bytes.Equal(w, data) {
			return true
		}
	}
	return false
}

func (f *fakeLink) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCalls
}

// weightFrame builds a 0x10 notification in the layout protocolType selects.
func weightFrame(protocolType byte, raw uint16, done byte, r1, r2 uint16) []byte {
	w := []byte{byte(raw >> 8), byte(raw)}
	res := []byte{byte(r1 >> 8), byte(r1), byte(r2 >> 8), byte(r2)}
	var payload []byte
	if protocolType == 0xff {
		payload = append([]byte{0x00, done}, w...)
	} else {
		payload = append(w, done)
	}
	return protocol.Build(protocol.CmdWeight, protocolType, append(payload, res...)...)
}

func testOptions() Options {
	return Options{
		Timeout: 2 * time.Second,
		Now:     func() time.Time { return testClock },
	}
}
