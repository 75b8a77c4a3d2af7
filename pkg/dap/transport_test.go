package dap

import (
	"errors"
	"fmt"
)

var errFakeTimeout = errors.New("fake: timeout")

// reply is one scripted transport answer.
type reply struct {
	resp    []byte
	sendErr error
	recvErr error
}

// fakeTransport answers each Send with the next scripted reply.
type fakeTransport struct {
	replies    []reply
	sent       [][]byte
	packetSize int
	setSize    int
}

func newFake(replies ...reply) *fakeTransport {
	return &fakeTransport{replies: replies}
}

func ok(resp ...byte) reply { return reply{resp: resp} }

func (f *fakeTransport) Send(frame []byte) error {
	f.sent = append(f.sent, append([]byte(nil), frame...))
	if len(f.replies) == 0 {
		return fmt.Errorf("fake: unexpected command 0x%02X", frame[0])
	}
	if err := f.replies[0].sendErr; err != nil {
		f.replies = f.replies[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	if len(f.replies) == 0 {
		return nil, errFakeTimeout
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.recvErr != nil {
		return nil, r.recvErr
	}
	return r.resp, nil
}

func (f *fakeTransport) PacketSize() int { return f.packetSize }

func (f *fakeTransport) SetPacketSize(n int) { f.setSize = n }
