// Package protocol defines the utterance streaming wire messages exchanged
// between the device segmenter and the server session, and their JSON codec.
//
// Every message is one JSON object with a required "type" tag. Binary audio
// travels as standard base64 text. Messages carry no utterance identifiers:
// the connection itself is the correlation key.
package protocol

// Type is the wire tag of a message.
type Type string

const (
	TypeBeginUtterance Type = "begin_utt"
	TypeAudioChunk     Type = "audio_chunk"
	TypeEndUtterance   Type = "end_utt"
	TypeAck            Type = "ack"
	TypeSTT            Type = "stt"
	TypeError          Type = "error"
	TypeAudioReply     Type = "audio_reply"
)

// Message is implemented by every protocol message variant.
type Message interface {
	Type() Type
}

// BeginUtterance opens an utterance recorded at Rate Hz. Client → server.
type BeginUtterance struct {
	Rate int
}

// AudioChunk carries raw mono 16-bit PCM for the open utterance. Client → server.
type AudioChunk struct {
	PCM []byte
}

// EndUtterance closes the open utterance. Client → server.
type EndUtterance struct{}

// Ack acknowledges a begin_utt. Server → client.
type Ack struct {
	OK bool
}

// STT reports a transcription outcome that ended the pipeline early,
// e.g. {"text":"","error":"no_speech"}. Server → client.
type STT struct {
	Text  string
	Error string
}

// Failure is the generic error reply. Server → client.
type Failure struct {
	Reason string
}

// Metrics records per-utterance latency, in milliseconds except AudioSec.
type Metrics struct {
	AudioSec float64 `json:"audio_sec"`
	STTMs    int64   `json:"stt_ms"`
	LLMMs    int64   `json:"llm_ms"`
	TTSMs    int64   `json:"tts_ms"`
	TotalMs  int64   `json:"total_ms"`
}

// AudioReply is the synthesized answer to one utterance. Server → client.
type AudioReply struct {
	STTText string
	LLMText string
	Rate    int
	PCM     []byte
	Metrics Metrics
}

func (BeginUtterance) Type() Type { return TypeBeginUtterance }
func (AudioChunk) Type() Type     { return TypeAudioChunk }
func (EndUtterance) Type() Type   { return TypeEndUtterance }
func (Ack) Type() Type            { return TypeAck }
func (STT) Type() Type            { return TypeSTT }
func (Failure) Type() Type        { return TypeError }
func (AudioReply) Type() Type     { return TypeAudioReply }
