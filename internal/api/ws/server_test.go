package wsapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/protocol"
	llmmock "github.com/yusin8/WERO/internal/service/llm/mock"
	"github.com/yusin8/WERO/internal/service/pipeline"
	"github.com/yusin8/WERO/internal/service/session"
	sttmock "github.com/yusin8/WERO/internal/service/stt/mock"
	"github.com/yusin8/WERO/internal/service/tts"
	ttsmock "github.com/yusin8/WERO/internal/service/tts/mock"
)

func newTestServer(t *testing.T, p session.Processor) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(DefaultConfig(), p)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func mockPipeline() *pipeline.Orchestrator {
	return pipeline.New(pipeline.Config{
		LanguageCode: "ko-KR",
		Voice:        tts.Voice{Name: "ko-KR-Standard-A", LanguageCode: "ko-KR", SampleRateHz: 22050},
		STTTimeout:   time.Second,
		LLMTimeout:   time.Second,
		TTSTimeout:   time.Second,
	}, sttmock.New(), llmmock.New(), ttsmock.New(), nil)
}

func TestServer_FullTurn(t *testing.T) {
	_, ts := newTestServer(t, mockPipeline())
	conn := dial(t, ts)

	send(t, conn, protocol.BeginUtterance{Rate: 16000})
	if ack, ok := receive(t, conn).(protocol.Ack); !ok || !ack.OK {
		t.Fatalf("expected ack, got %#v", ack)
	}
	for i := 0; i < 3; i++ {
		send(t, conn, protocol.AudioChunk{PCM: audio.Tone(16000, 20, 440, 0.5)})
	}
	send(t, conn, protocol.EndUtterance{})

	reply, ok := receive(t, conn).(protocol.AudioReply)
	if !ok {
		t.Fatal("expected audio_reply")
	}
	if reply.STTText != sttmock.DefaultTranscripts[0] {
		t.Errorf("expected stt_text %q, got %q", sttmock.DefaultTranscripts[0], reply.STTText)
	}
	if reply.Rate != 22050 || len(reply.PCM) == 0 {
		t.Errorf("unexpected reply audio: rate=%d bytes=%d", reply.Rate, len(reply.PCM))
	}
}

func TestServer_ErrorsKeepConnectionOpen(t *testing.T) {
	_, ts := newTestServer(t, mockPipeline())
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"shout"}`)); err != nil {
		t.Fatal(err)
	}
	if f, ok := receive(t, conn).(protocol.Failure); !ok || f.Reason != "unknown_type:shout" {
		t.Errorf("expected unknown_type:shout, got %#v", f)
	}

	send(t, conn, protocol.EndUtterance{})
	if f, ok := receive(t, conn).(protocol.Failure); !ok || f.Reason != protocol.ReasonNoActiveUtterance {
		t.Errorf("expected no_active_utterance, got %#v", f)
	}

	send(t, conn, protocol.BeginUtterance{Rate: 16000})
	if _, ok := receive(t, conn).(protocol.Ack); !ok {
		t.Error("expected ack after errors")
	}
}

func TestServer_EmptyUtterance(t *testing.T) {
	_, ts := newTestServer(t, mockPipeline())
	conn := dial(t, ts)

	send(t, conn, protocol.BeginUtterance{Rate: 16000})
	receive(t, conn)
	send(t, conn, protocol.EndUtterance{})

	stt, ok := receive(t, conn).(protocol.STT)
	if !ok || stt.Text != "" || stt.Error != protocol.ReasonNoSpeech {
		t.Errorf("expected no_speech, got %#v", stt)
	}
}

// blockingProcessor parks until the connection context is cancelled.
type blockingProcessor struct {
	started   chan struct{}
	cancelled chan struct{}
	once      sync.Once
}

func (p *blockingProcessor) Process(ctx context.Context, _ pipeline.Request) (protocol.Message, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	close(p.cancelled)
	return nil, ctx.Err()
}

func TestServer_DisconnectCancelsPipeline(t *testing.T) {
	p := &blockingProcessor{started: make(chan struct{}), cancelled: make(chan struct{})}
	_, ts := newTestServer(t, p)
	conn := dial(t, ts)

	send(t, conn, protocol.BeginUtterance{Rate: 16000})
	receive(t, conn)
	send(t, conn, protocol.EndUtterance{})

	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline never started")
	}
	conn.Close()

	select {
	case <-p.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("expected pipeline to be cancelled after disconnect")
	}
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	srv, ts := newTestServer(t, mockPipeline())
	conn := dial(t, ts)

	send(t, conn, protocol.BeginUtterance{Rate: 16000})
	receive(t, conn)

	srv.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
