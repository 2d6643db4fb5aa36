// Package wyoming implements the Wyoming line-delimited JSON protocol
// (spec.md section 4.I, byte-exact shapes in section 6), grounded on
// original_source/voice/wyoming/protocol.py's WyomingMessage container
// and per-type payload dataclasses.
package wyoming

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MessageType is the Wyoming protocol's top-level "type" discriminator.
type MessageType string

const (
	TypeAudioChunk   MessageType = "audio-chunk"
	TypeAudioStart   MessageType = "audio-start"
	TypeAudioStop    MessageType = "audio-stop"
	TypeTranscript   MessageType = "transcript"
	TypeSynthesize   MessageType = "synthesize"
	TypeInfo         MessageType = "info"
	TypeDescribe     MessageType = "describe"
	TypeError        MessageType = "error"
	TypeVoiceStarted MessageType = "voice-started"
	TypeVoiceStopped MessageType = "voice-stopped"
)

// AudioStart signals the beginning of an audio stream.
type AudioStart struct {
	Rate      int      `json:"rate"`
	Width     int      `json:"width"`
	Channels  int      `json:"channels"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// AudioChunk carries one frame of raw PCM, base64-encoded in transit.
type AudioChunk struct {
	Audio     []byte   `json:"-"`
	Rate      int      `json:"rate"`
	Width     int      `json:"width"`
	Channels  int      `json:"channels"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// audioChunkWire is AudioChunk's base64-on-the-wire representation.
type audioChunkWire struct {
	Audio     string   `json:"audio"`
	Rate      int      `json:"rate"`
	Width     int      `json:"width"`
	Channels  int      `json:"channels"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

func (a AudioChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(audioChunkWire{
		Audio:     base64.StdEncoding.EncodeToString(a.Audio),
		Rate:      a.Rate,
		Width:     a.Width,
		Channels:  a.Channels,
		Timestamp: a.Timestamp,
	})
}

func (a *AudioChunk) UnmarshalJSON(data []byte) error {
	var w audioChunkWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(w.Audio)
	if err != nil {
		return fmt.Errorf("wyoming: invalid base64 audio: %w", err)
	}
	a.Audio = raw
	a.Rate, a.Width, a.Channels, a.Timestamp = w.Rate, w.Width, w.Channels, w.Timestamp
	return nil
}

// AudioStop signals the end of an audio stream.
type AudioStop struct {
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// Transcript is an STT result.
type Transcript struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	IsFinal    bool     `json:"is_final"`
	Language   string   `json:"language,omitempty"`
	StartTime  *float64 `json:"start_time,omitempty"`
	EndTime    *float64 `json:"end_time,omitempty"`
}

// Synthesize is a TTS request.
type Synthesize struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Language string  `json:"language,omitempty"`
}

// AsrProgram describes one installed STT program (for Info responses).
type AsrProgram struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Installed    bool   `json:"installed"`
	Attribution  string `json:"attribution,omitempty"`
	Version      string `json:"version,omitempty"`
}

// TtsProgram describes one installed TTS program (for Info responses).
type TtsProgram struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Installed   bool     `json:"installed"`
	Attribution string   `json:"attribution,omitempty"`
	Version     string   `json:"version,omitempty"`
	Voices      []string `json:"voices,omitempty"`
}

// Info is a service discovery response.
type Info struct {
	Asr []AsrProgram `json:"asr,omitempty"`
	Tts []TtsProgram `json:"tts,omitempty"`
}

// Describe requests service information; it carries no fields.
type Describe struct{}

// Error is a protocol-level error payload.
type Error struct {
	Text string `json:"text"`
	Code string `json:"code,omitempty"`
}

// VoiceStarted/VoiceStopped are the supplemented voice-activity events
// original_source's protocol enumerates (MessageType.VOICE_STARTED/
// VOICE_STOPPED) but whose payload shape it never defines; both carry
// only a timestamp, mirroring AudioStop.
type VoiceStarted struct {
	Timestamp *float64 `json:"timestamp,omitempty"`
}

type VoiceStopped struct {
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// Message is the Wyoming protocol envelope: a type discriminator plus an
// optional type-specific payload, newline-delimited JSON on the wire.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// wireMessage mirrors Message but with Data left as raw JSON so decoding
// can dispatch on Type before unmarshaling the payload.
type wireMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Marshal serializes m to a single JSON line (no trailing newline).
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses a single JSON line into a Message, decoding Data into
// the concrete payload type implied by Type (mirroring
// WyomingMessage.from_json's type-directed dispatch).
func Unmarshal(line []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return Message{}, fmt.Errorf("wyoming: invalid frame: %w", err)
	}
	msg := Message{Type: w.Type}
	if len(w.Data) == 0 || string(w.Data) == "null" {
		return msg, nil
	}
	var err error
	switch w.Type {
	case TypeAudioStart:
		var d AudioStart
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeAudioChunk:
		var d AudioChunk
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeAudioStop:
		var d AudioStop
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeTranscript:
		var d Transcript
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeSynthesize:
		var d Synthesize
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeInfo:
		var d Info
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeDescribe:
		msg.Data = Describe{}
	case TypeError:
		var d Error
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeVoiceStarted:
		var d VoiceStarted
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	case TypeVoiceStopped:
		var d VoiceStopped
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	default:
		var d map[string]any
		err = json.Unmarshal(w.Data, &d)
		msg.Data = d
	}
	if err != nil {
		return Message{}, fmt.Errorf("wyoming: invalid %s payload: %w", w.Type, err)
	}
	return msg, nil
}

// Factory helpers for the messages this package's servers emit most often.

func NewAudioStart(rate, width, channels int) Message {
	return Message{Type: TypeAudioStart, Data: AudioStart{Rate: rate, Width: width, Channels: channels}}
}

func NewAudioChunk(audio []byte, rate, width, channels int) Message {
	return Message{Type: TypeAudioChunk, Data: AudioChunk{Audio: audio, Rate: rate, Width: width, Channels: channels}}
}

func NewAudioStop() Message {
	return Message{Type: TypeAudioStop, Data: AudioStop{}}
}

func NewTranscript(text string, confidence float64, isFinal bool) Message {
	return Message{Type: TypeTranscript, Data: Transcript{Text: text, Confidence: confidence, IsFinal: isFinal}}
}

func NewSynthesize(text, voice string) Message {
	return Message{Type: TypeSynthesize, Data: Synthesize{Text: text, Voice: voice}}
}

func NewDescribe() Message {
	return Message{Type: TypeDescribe, Data: Describe{}}
}

func NewInfo(asr []AsrProgram, tts []TtsProgram) Message {
	return Message{Type: TypeInfo, Data: Info{Asr: asr, Tts: tts}}
}

func NewError(text, code string) Message {
	return Message{Type: TypeError, Data: Error{Text: text, Code: code}}
}
