package wyoming

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultSTTPort and DefaultTTSPort are spec.md section 6's documented
// default listen ports.
const (
	DefaultSTTPort = 10300
	DefaultTTSPort = 10301
)

// Transcriber is the STT backend an STTServer wraps. rate/width/channels
// describe the accumulated PCM exactly as negotiated by audio-start.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, rate, width, channels int) (text string, confidence float64, err error)
}

// Synthesizer is the TTS backend a TTSServer wraps. It returns 16-bit
// mono PCM at its own native rate, per spec.md section 4.I's "TTS side
// emits 16-bit mono at the voice model's native rate".
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (audio []byte, rate int, err error)
}

// serveConn (below) is the per-connection lifecycle shared by STTServer and
// TTSServer: accept, frame loop, teardown. Each server supplies its own
// per-message handling via handle. connState is an STT session's state.
type connState string

const (
	connIdle    connState = "idle"
	connStream  connState = "streaming"
	connTrans   connState = "transcribing"
)

func serveConn(ctx context.Context, nc net.Conn, logger log.Logger, handle func(ctx context.Context, r *bufio.Reader, w io.Writer) error) {
	defer nc.Close()
	r := bufio.NewReader(nc)
	if err := handle(ctx, r, nc); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn(ctx, "wyoming: connection handler ended with error", "remote", nc.RemoteAddr().String(), "error", err.Error())
	}
}

func acceptLoop(ctx context.Context, ln net.Listener, logger log.Logger, component string, onConn func(ctx context.Context, nc net.Conn)) {
	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			default:
			}
			logger.Warn(ctx, component+": accept failed", "error", err.Error())
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			onConn(ctx, nc)
		}()
	}
}

// STTServer exposes a Transcriber over the Wyoming protocol (spec.md
// section 4.I), grounded on
// original_source/voice/wyoming/stt_server.py's WyomingSTTServer.
type STTServer struct {
	Transcriber Transcriber
	Logger      log.Logger
	ProgramName string
}

type sttSession struct {
	state    connState
	format   AudioStart
	haveFmt  bool
	buffer   [][]byte
}

// Serve accepts connections on ln until ctx is cancelled, handling each
// in its own goroutine (spec.md section 4.I's "own fibre/task" per
// connection).
func (s *STTServer) Serve(ctx context.Context, ln net.Listener) {
	acceptLoop(ctx, ln, s.Logger, "wyoming-stt", func(ctx context.Context, nc net.Conn) {
		serveConn(ctx, nc, s.Logger, s.handleConn)
	})
}

func (s *STTServer) handleConn(ctx context.Context, r *bufio.Reader, w io.Writer) error {
	sess := &sttSession{state: connIdle}
	for {
		msg, err := ReadMessage(r)
		if err != nil {
			return err
		}
		resp, err := s.handleMessage(ctx, msg, sess)
		if err != nil {
			if werr := WriteMessage(w, NewError(err.Error(), "")); werr != nil {
				return werr
			}
			continue
		}
		if resp != nil {
			if err := WriteMessage(w, *resp); err != nil {
				return err
			}
		}
	}
}

func (s *STTServer) handleMessage(ctx context.Context, msg Message, sess *sttSession) (*Message, error) {
	switch msg.Type {
	case TypeDescribe:
		info := NewInfo([]AsrProgram{{Name: s.programName(), Installed: s.Transcriber != nil}}, nil)
		return &info, nil

	case TypeAudioStart:
		sess.buffer = nil
		sess.state = connStream
		if d, ok := msg.Data.(AudioStart); ok {
			sess.format = d
			sess.haveFmt = true
		}
		return nil, nil

	case TypeAudioChunk:
		if sess.state != connStream {
			s.Logger.Warn(ctx, "wyoming-stt: audio-chunk outside streaming state", "state", string(sess.state))
			return nil, nil
		}
		if d, ok := msg.Data.(AudioChunk); ok {
			sess.buffer = append(sess.buffer, d.Audio)
		}
		return nil, nil

	case TypeAudioStop:
		sess.state = connTrans
		transcript := s.transcribe(ctx, sess)
		sess.state = connIdle
		sess.buffer = nil
		return &transcript, nil

	case TypeVoiceStarted, TypeVoiceStopped:
		return nil, nil

	default:
		s.Logger.Warn(ctx, "wyoming-stt: unhandled message type", "type", string(msg.Type))
		return nil, nil
	}
}

func (s *STTServer) transcribe(ctx context.Context, sess *sttSession) Message {
	if len(sess.buffer) == 0 {
		return NewTranscript("", 0, true)
	}
	if s.Transcriber == nil {
		return NewTranscript("", 0, true)
	}
	rate, width, channels := 16000, 2, 1
	if sess.haveFmt {
		rate, width, channels = sess.format.Rate, sess.format.Width, sess.format.Channels
	}
	audio := joinChunks(sess.buffer)
	text, confidence, err := s.Transcriber.Transcribe(ctx, audio, rate, width, channels)
	if err != nil {
		return NewError(err.Error(), "")
	}
	return NewTranscript(text, confidence, true)
}

func (s *STTServer) programName() string {
	if s.ProgramName != "" {
		return s.ProgramName
	}
	return "nightwatch-stt"
}

func joinChunks(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// TTSServer exposes a Synthesizer over the Wyoming protocol, grounded on
// original_source/voice/wyoming/tts_server.py's WyomingTTSServer.
type TTSServer struct {
	Synthesizer Synthesizer
	Logger      log.Logger
	ProgramName string
	ChunkBytes  int // defaults to 4096, matching the original's CHUNK_SIZE
}

func (s *TTSServer) Serve(ctx context.Context, ln net.Listener) {
	acceptLoop(ctx, ln, s.Logger, "wyoming-tts", func(ctx context.Context, nc net.Conn) {
		serveConn(ctx, nc, s.Logger, s.handleConn)
	})
}

func (s *TTSServer) handleConn(ctx context.Context, r *bufio.Reader, w io.Writer) error {
	for {
		msg, err := ReadMessage(r)
		if err != nil {
			return err
		}
		responses, err := s.handleMessage(ctx, msg)
		if err != nil {
			if werr := WriteMessage(w, NewError(err.Error(), "")); werr != nil {
				return werr
			}
			continue
		}
		for _, resp := range responses {
			if err := WriteMessage(w, resp); err != nil {
				return err
			}
		}
	}
}

func (s *TTSServer) handleMessage(ctx context.Context, msg Message) ([]Message, error) {
	switch msg.Type {
	case TypeDescribe:
		info := NewInfo(nil, []TtsProgram{{Name: s.programName(), Installed: s.Synthesizer != nil}})
		return []Message{info}, nil

	case TypeSynthesize:
		d, ok := msg.Data.(Synthesize)
		if !ok {
			return nil, errors.New("synthesize: missing text")
		}
		return s.synthesize(ctx, d)

	default:
		s.Logger.Warn(ctx, "wyoming-tts: unhandled message type", "type", string(msg.Type))
		return nil, nil
	}
}

func (s *TTSServer) synthesize(ctx context.Context, req Synthesize) ([]Message, error) {
	if s.Synthesizer == nil {
		return nil, errors.New("no TTS backend configured")
	}
	audio, rate, err := s.Synthesizer.Synthesize(ctx, req.Text, req.Voice)
	if err != nil {
		return nil, err
	}
	const width, channels = 2, 1
	chunkSize := s.ChunkBytes
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	out := []Message{NewAudioStart(rate, width, channels)}
	for off := 0; off < len(audio); off += chunkSize {
		end := off + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		out = append(out, NewAudioChunk(audio[off:end], rate, width, channels))
	}
	out = append(out, NewAudioStop())
	return out, nil
}

func (s *TTSServer) programName() string {
	if s.ProgramName != "" {
		return s.ProgramName
	}
	return "nightwatch-tts"
}
