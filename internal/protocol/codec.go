package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

type beginWire struct {
	Type Type `json:"type"`
	Rate int  `json:"rate"`
}

type chunkWire struct {
	Type      Type   `json:"type"`
	PCMBase64 string `json:"pcm_base64"`
}

type endWire struct {
	Type Type `json:"type"`
}

type ackWire struct {
	Type Type `json:"type"`
	OK   bool `json:"ok"`
}

type sttWire struct {
	Type  Type   `json:"type"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

type errorWire struct {
	Type  Type   `json:"type"`
	Error string `json:"error"`
}

type replyWire struct {
	Type      Type    `json:"type"`
	STTText   string  `json:"stt_text"`
	LLMText   string  `json:"llm_text"`
	Rate      int     `json:"rate"`
	PCMBase64 string  `json:"pcm_base64"`
	Metrics   Metrics `json:"metrics"`
}

// Encode serializes m into its JSON envelope.
func Encode(m Message) ([]byte, error) {
	var v any
	switch msg := m.(type) {
	case BeginUtterance:
		v = beginWire{Type: TypeBeginUtterance, Rate: msg.Rate}
	case AudioChunk:
		v = chunkWire{Type: TypeAudioChunk, PCMBase64: encodePCM(msg.PCM)}
	case EndUtterance:
		v = endWire{Type: TypeEndUtterance}
	case Ack:
		v = ackWire{Type: TypeAck, OK: msg.OK}
	case STT:
		v = sttWire{Type: TypeSTT, Text: msg.Text, Error: msg.Error}
	case Failure:
		v = errorWire{Type: TypeError, Error: msg.Reason}
	case AudioReply:
		v = replyWire{
			Type:      TypeAudioReply,
			STTText:   msg.STTText,
			LLMText:   msg.LLMText,
			Rate:      msg.Rate,
			PCMBase64: encodePCM(msg.PCM),
			Metrics:   msg.Metrics,
		}
	case nil:
		return nil, errors.New("protocol: encode nil message")
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", m)
	}
	return json.Marshal(v)
}

// Decode parses one JSON envelope. Errors match ErrMalformedPayload,
// ErrInvalidMessageType or ErrUnknownMessageType; use DecodeErrorReply to turn
// them into the reply for the peer.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var tag string
	if len(head.Type) == 0 || json.Unmarshal(head.Type, &tag) != nil || tag == "" {
		return nil, ErrInvalidMessageType
	}

	switch Type(tag) {
	case TypeBeginUtterance:
		var w beginWire
		if err := unmarshal(data, &w); err != nil {
			return nil, err
		}
		return BeginUtterance{Rate: w.Rate}, nil
	case TypeAudioChunk:
		var w chunkWire
		if err := unmarshal(data, &w); err != nil {
			return nil, err
		}
		pcm, err := decodePCM(w.PCMBase64)
		if err != nil {
			return nil, err
		}
		return AudioChunk{PCM: pcm}, nil
	case TypeEndUtterance:
		return EndUtterance{}, nil
	case TypeAck:
		var w ackWire
		if err := unmarshal(data, &w); err != nil {
			return nil, err
		}
		return Ack{OK: w.OK}, nil
	case TypeSTT:
		var w sttWire
		if err := unmarshal(data, &w); err != nil {
			return nil, err
		}
		return STT{Text: w.Text, Error: w.Error}, nil
	case TypeError:
		var w errorWire
		if err := unmarshal(data, &w); err != nil {
			return nil, err
		}
		return Failure{Reason: w.Error}, nil
	case TypeAudioReply:
		var w replyWire
		if err := unmarshal(data, &w); err != nil {
			return nil, err
		}
		pcm, err := decodePCM(w.PCMBase64)
		if err != nil {
			return nil, err
		}
		return AudioReply{
			STTText: w.STTText,
			LLMText: w.LLMText,
			Rate:    w.Rate,
			PCM:     pcm,
			Metrics: w.Metrics,
		}, nil
	default:
		return nil, &UnknownTypeError{Tag: tag}
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func encodePCM(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// decodePCM returns nil for an empty or missing payload.
func decodePCM(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: pcm_base64: %v", ErrMalformedPayload, err)
	}
	return pcm, nil
}
