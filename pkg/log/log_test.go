package log

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func sampleEvent(handleID string, dir Direction) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		HandleID:  handleID,
		Direction: dir,
		Layer:     LayerTransport,
		Category:  CategoryPacket,
		Family:    "tanchjim",
		Packet:    NewPacketEvent([]byte{0x4B, 0x65, 0x00, 0x00, 0x00, 0x52}),
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	e := sampleEvent("handle-1", DirectionOut)
	data, err := EncodeEvent(e)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if got.HandleID != e.HandleID || got.Direction != e.Direction {
		t.Errorf("round trip lost identity fields: %+v", got)
	}
	if got.Packet == nil || !bytes.Equal(got.Packet.Data, e.Packet.Data) {
		t.Errorf("round trip lost packet data: %+v", got.Packet)
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, e.Timestamp)
	}
}

func TestNewPacketEventTruncation(t *testing.T) {
	small := NewPacketEvent(make([]byte, 11))
	if small.Truncated || small.Size != 11 || len(small.Data) != 11 {
		t.Errorf("small packet: %+v", small)
	}

	big := NewPacketEvent(make([]byte, MaxPacketCapture+20))
	if !big.Truncated {
		t.Error("large packet must be marked truncated")
	}
	if big.Size != MaxPacketCapture+20 {
		t.Errorf("Size = %d, want original length", big.Size)
	}
	if len(big.Data) != MaxPacketCapture {
		t.Errorf("len(Data) = %d, want %d", len(big.Data), MaxPacketCapture)
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.dlog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	l.Log(sampleEvent("a", DirectionOut))
	l.Log(sampleEvent("b", DirectionIn))
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Log after Close is ignored.
	l.Log(sampleEvent("c", DirectionOut))

	events, err := ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].HandleID != "a" || events[1].HandleID != "b" {
		t.Errorf("unexpected order: %q, %q", events[0].HandleID, events[1].HandleID)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.dlog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Log(sampleEvent("h", DirectionOut))
			}
		}()
	}
	wg.Wait()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, err := ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(events) != 200 {
		t.Errorf("got %d events, want 200", len(events))
	}
}

func TestReadEventsFilter(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, e := range []Event{
		sampleEvent("a", DirectionOut),
		sampleEvent("a", DirectionIn),
		sampleEvent("b", DirectionOut),
	} {
		if err := enc.Encode(e); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	dir := DirectionOut
	events, err := ReadEvents(bytes.NewReader(buf.Bytes()), &Filter{HandleID: "a", Direction: &dir})
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].HandleID != "a" || events[0].Direction != DirectionOut {
		t.Errorf("wrong event selected: %+v", events[0])
	}
}

func TestMultiLogger(t *testing.T) {
	var mu sync.Mutex
	var got []string
	rec := func(name string) Logger {
		return loggerFunc(func(e Event) {
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
		})
	}

	m := NewMultiLogger(rec("first"), rec("second"), NoopLogger{})
	m.Log(sampleEvent("x", DirectionOut))

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("delivery order = %v", got)
	}
}

type loggerFunc func(Event)

func (f loggerFunc) Log(e Event) { f(e) }

func TestEnumStrings(t *testing.T) {
	if DirectionIn.String() != "IN" || DirectionOut.String() != "OUT" {
		t.Error("direction strings")
	}
	if LayerTransport.String() != "TRANSPORT" || LayerCodec.String() != "CODEC" || LayerSession.String() != "SESSION" {
		t.Error("layer strings")
	}
	if Category(99).String() != "UNKNOWN" {
		t.Error("unknown category string")
	}
}
