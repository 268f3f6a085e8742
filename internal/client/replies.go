package client

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yusin8/WERO/internal/protocol"
	"github.com/yusin8/WERO/internal/service/segment"
)

// replyTracker matches server messages to the utterance they answer. The
// server answers in send order: one ack per begin_utt, one reply per end_utt
// and an error for each rejected audio_chunk. Anything read before the ack of
// the latest begin_utt belongs to an earlier, dropped utterance.
type replyTracker struct {
	seg *segment.Segmenter

	mu      sync.Mutex
	begins  int
	acks    int
	turns   int
	endSent time.Time
}

func newReplyTracker(seg *segment.Segmenter) *replyTracker {
	return &replyTracker{seg: seg}
}

// sent records an outbound message. It must be called before the message is
// written.
func (r *replyTracker) sent(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch msg.Type() {
	case protocol.TypeBeginUtterance:
		r.begins++
	case protocol.TypeEndUtterance:
		r.endSent = time.Now()
	}
}

// receive reports whether msg is the reply to the pending end_utt, and the
// turn it completes.
func (r *replyTracker) receive(msg protocol.Message) (Turn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := msg.(protocol.Ack); ok {
		r.acks++
		return Turn{}, false
	}
	if r.acks < r.begins {
		log.Debug().Str("type", string(msg.Type())).Interface("message", msg).Msg("Ignoring reply for a dropped utterance")
		return Turn{}, false
	}
	if f, ok := msg.(protocol.Failure); ok && f.Reason == protocol.ReasonUtteranceTooLarge {
		// The server closed the utterance; stop streaming it. If end_utt is
		// already out, its own reply follows.
		if r.seg.Discard() {
			log.Warn().Msg("Server dropped the utterance as too large, discarding")
		}
		return Turn{}, false
	}
	if r.seg.Phase() != segment.PhaseAwaiting {
		log.Warn().Str("type", string(msg.Type())).Interface("message", msg).Msg("Unsolicited server message")
		return Turn{}, false
	}

	r.turns++
	turn := Turn{Utterance: r.turns, RoundTrip: time.Since(r.endSent)}
	switch m := msg.(type) {
	case protocol.AudioReply:
		turn.STTText, turn.LLMText = m.STTText, m.LLMText
		turn.ReplyBytes, turn.ReplyRate = len(m.PCM), m.Rate
		turn.ServerMetrics = m.Metrics
	case protocol.STT:
		turn.STTText, turn.Error = m.Text, m.Error
	case protocol.Failure:
		turn.Error = m.Reason
	}
	return turn, true
}
