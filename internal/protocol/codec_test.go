package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"unicode"

	"pgregory.net/rapid"
)

func TestEncode_WireFormat(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"begin", BeginUtterance{Rate: 16000}, `{"type":"begin_utt","rate":16000}`},
		{"chunk", AudioChunk{PCM: []byte{1, 2, 3}}, `{"type":"audio_chunk","pcm_base64":"AQID"}`},
		{"end", EndUtterance{}, `{"type":"end_utt"}`},
		{"ack", Ack{OK: true}, `{"type":"ack","ok":true}`},
		{"no speech", NoSpeech(), `{"type":"stt","text":"","error":"no_speech"}`},
		{"error", Failure{Reason: ReasonNoActiveUtterance}, `{"type":"error","error":"no_active_utterance"}`},
		{
			"reply",
			AudioReply{STTText: "hi", LLMText: "hello", Rate: 22050, PCM: []byte{0, 1},
				Metrics: Metrics{AudioSec: 1.5, STTMs: 10, LLMMs: 20, TTSMs: 30, TotalMs: 61}},
			`{"type":"audio_reply","stt_text":"hi","llm_text":"hello","rate":22050,"pcm_base64":"AAE=",` +
				`"metrics":{"audio_sec":1.5,"stt_ms":10,"llm_ms":20,"tts_ms":30,"total_ms":61}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEncode_Nil(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Error("expected error encoding nil message")
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   error
		reason string
	}{
		{"not json", `{"type":`, ErrMalformedPayload, ReasonMalformedPayload},
		{"json array", `[1,2]`, ErrMalformedPayload, ReasonMalformedPayload},
		{"missing type", `{"rate":16000}`, ErrInvalidMessageType, ReasonInvalidMessageType},
		{"empty type", `{"type":""}`, ErrInvalidMessageType, ReasonInvalidMessageType},
		{"numeric type", `{"type":7}`, ErrInvalidMessageType, ReasonInvalidMessageType},
		{"unknown type", `{"type":"audio"}`, ErrUnknownMessageType, "unknown_type:audio"},
		{"bad base64", `{"type":"audio_chunk","pcm_base64":"!!!"}`, ErrMalformedPayload, ReasonMalformedPayload},
		{"bad rate", `{"type":"begin_utt","rate":"fast"}`, ErrMalformedPayload, ReasonMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			if msg != nil {
				t.Errorf("expected nil message, got %#v", msg)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := DecodeErrorReply(err).Reason; got != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, got)
			}
		})
	}
}

func TestDecode_MissingOptionalFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"audio_chunk"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk := msg.(AudioChunk); chunk.PCM != nil {
		t.Errorf("expected nil PCM, got %v", chunk.PCM)
	}

	msg, err = Decode([]byte(`{"type":"begin_utt"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if begin := msg.(BeginUtterance); begin.Rate != 0 {
		t.Errorf("expected zero rate, got %d", begin.Rate)
	}
}

func TestRoundTrip_PayloadSizes(t *testing.T) {
	sizes := map[string]int{
		"empty":      0,
		"one frame":  640, // 20ms at 16kHz
		"multi-MB":   3 << 20,
		"odd length": 641,
	}

	for name, n := range sizes {
		t.Run(name, func(t *testing.T) {
			var pcm []byte
			if n > 0 {
				pcm = make([]byte, n)
				for i := range pcm {
					pcm[i] = byte(i * 31)
				}
			}

			for _, msg := range []Message{
				AudioChunk{PCM: pcm},
				AudioReply{STTText: "안녕", LLMText: "네, 안녕하세요", Rate: 22050, PCM: pcm,
					Metrics: Metrics{AudioSec: 0.02, STTMs: 1, LLMMs: 2, TTSMs: 3, TotalMs: 6}},
			} {
				data, err := Encode(msg)
				if err != nil {
					t.Fatalf("Encode(%s) failed: %v", msg.Type(), err)
				}
				got, err := Decode(data)
				if err != nil {
					t.Fatalf("Decode(%s) failed: %v", msg.Type(), err)
				}
				if !reflect.DeepEqual(got, msg) {
					t.Errorf("%s: round trip mismatch", msg.Type())
				}
			}
		})
	}
}

func TestRoundTrip_AllVariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := genMessage().Draw(t, "msg")

		data, err := Encode(msg)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !reflect.DeepEqual(got, msg) {
			t.Fatalf("expected %#v, got %#v", msg, got)
		}
	})
}

func TestDecode_NeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		msg, err := Decode(data)
		if (msg == nil) == (err == nil) {
			t.Fatalf("expected exactly one of message/error, got %v / %v", msg, err)
		}
	})
}

func TestReplyHelpers(t *testing.T) {
	if got := LLMCallFailed("timeout").Reason; got != "llm_call_failed: timeout" {
		t.Errorf("expected llm_call_failed: timeout, got %s", got)
	}
	if got := TTSFailed("").Reason; got != "tts_failed" {
		t.Errorf("expected tts_failed, got %s", got)
	}
	if !HasReasonPrefix(STTFailed("boom").Reason, "stt_failed") {
		t.Error("expected stt_failed prefix")
	}
	if HasReasonPrefix("stt_failedx", "stt_failed") {
		t.Error("expected prefix match to require a separator")
	}
}

func genText() *rapid.Generator[string] {
	return rapid.StringOf(rapid.RuneFrom(nil, unicode.L, unicode.N, unicode.P, unicode.Zs))
}

func genPCM() *rapid.Generator[[]byte] {
	return rapid.Custom(func(t *rapid.T) []byte {
		pcm := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "pcm")
		if len(pcm) == 0 {
			return nil
		}
		return bytes.Clone(pcm)
	})
}

func genMessage() *rapid.Generator[Message] {
	return rapid.OneOf(
		rapid.Custom(func(t *rapid.T) Message {
			return BeginUtterance{Rate: rapid.IntRange(0, 96000).Draw(t, "rate")}
		}),
		rapid.Custom(func(t *rapid.T) Message {
			return AudioChunk{PCM: genPCM().Draw(t, "pcm")}
		}),
		rapid.Just[Message](EndUtterance{}),
		rapid.Custom(func(t *rapid.T) Message {
			return Ack{OK: rapid.Bool().Draw(t, "ok")}
		}),
		rapid.Custom(func(t *rapid.T) Message {
			return STT{Text: genText().Draw(t, "text"), Error: genText().Draw(t, "error")}
		}),
		rapid.Custom(func(t *rapid.T) Message {
			return Failure{Reason: genText().Draw(t, "reason")}
		}),
		rapid.Custom(func(t *rapid.T) Message {
			return AudioReply{
				STTText: genText().Draw(t, "stt"),
				LLMText: genText().Draw(t, "llm"),
				Rate:    rapid.IntRange(8000, 48000).Draw(t, "rate"),
				PCM:     genPCM().Draw(t, "pcm"),
				Metrics: Metrics{
					AudioSec: rapid.Float64Range(0, 600).Draw(t, "audio_sec"),
					STTMs:    rapid.Int64Range(0, 1e6).Draw(t, "stt_ms"),
					LLMMs:    rapid.Int64Range(0, 1e6).Draw(t, "llm_ms"),
					TTSMs:    rapid.Int64Range(0, 1e6).Draw(t, "tts_ms"),
					TotalMs:  rapid.Int64Range(0, 3e6).Draw(t, "total_ms"),
				},
			}
		}),
	)
}
