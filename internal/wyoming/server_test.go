package wyoming

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type fakeLogger struct{}

var _ log.Logger = (*fakeLogger)(nil)

func (fakeLogger) Info(ctx context.Context, msg string, kv ...any)             {}
func (fakeLogger) Warn(ctx context.Context, msg string, kv ...any)             {}
func (fakeLogger) Error(ctx context.Context, err error, msg string, kv ...any) {}
func (l fakeLogger) With(kv ...any) log.Logger                                { return l }

type fakeTranscriber struct {
	text       string
	confidence float64
	err        error
	gotAudio   []byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, rate, width, channels int) (string, float64, error) {
	f.gotAudio = audio
	return f.text, f.confidence, f.err
}

type fakeSynthesizer struct {
	audio []byte
	rate  int
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, int, error) {
	return f.audio, f.rate, f.err
}

func TestSTTHandleMessageDescribeReturnsInfo(t *testing.T) {
	s := &STTServer{Transcriber: &fakeTranscriber{}, Logger: fakeLogger{}}
	sess := &sttSession{state: connIdle}
	resp, err := s.handleMessage(context.Background(), NewDescribe(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.Type != TypeInfo {
		t.Fatalf("expected info response, got %#v", resp)
	}
}

func TestSTTAudioChunkOutsideStreamIgnored(t *testing.T) {
	tr := &fakeTranscriber{}
	s := &STTServer{Transcriber: tr, Logger: fakeLogger{}}
	sess := &sttSession{state: connIdle}
	resp, err := s.handleMessage(context.Background(), NewAudioChunk([]byte{1, 2, 3}, 16000, 2, 1), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected no response for out-of-stream chunk, got %#v", resp)
	}
	if len(sess.buffer) != 0 {
		t.Fatalf("expected chunk to be dropped, buffer has %d entries", len(sess.buffer))
	}
}

func TestSTTFullUtteranceProducesTranscript(t *testing.T) {
	tr := &fakeTranscriber{text: "point at M31", confidence: 0.93}
	s := &STTServer{Transcriber: tr, Logger: fakeLogger{}}
	sess := &sttSession{state: connIdle}

	if _, err := s.handleMessage(context.Background(), NewAudioStart(16000, 2, 1), sess); err != nil {
		t.Fatalf("audio-start: %v", err)
	}
	chunk1 := []byte{1, 2, 3, 4}
	chunk2 := []byte{5, 6, 7, 8}
	if _, err := s.handleMessage(context.Background(), NewAudioChunk(chunk1, 16000, 2, 1), sess); err != nil {
		t.Fatalf("audio-chunk 1: %v", err)
	}
	if _, err := s.handleMessage(context.Background(), NewAudioChunk(chunk2, 16000, 2, 1), sess); err != nil {
		t.Fatalf("audio-chunk 2: %v", err)
	}
	resp, err := s.handleMessage(context.Background(), NewAudioStop(), sess)
	if err != nil {
		t.Fatalf("audio-stop: %v", err)
	}
	if resp == nil || resp.Type != TypeTranscript {
		t.Fatalf("expected transcript response, got %#v", resp)
	}
	d := resp.Data.(Transcript)
	if d.Text != "point at M31" || d.Confidence != 0.93 || !d.IsFinal {
		t.Fatalf("unexpected transcript: %#v", d)
	}
	if len(tr.gotAudio) != 8 {
		t.Fatalf("expected 8 bytes of concatenated audio, got %d", len(tr.gotAudio))
	}
	if sess.state != connIdle {
		t.Fatalf("expected session to return to idle, got %s", sess.state)
	}
}

func TestSTTNewAudioStartResetsBuffer(t *testing.T) {
	s := &STTServer{Transcriber: &fakeTranscriber{}, Logger: fakeLogger{}}
	sess := &sttSession{state: connStream, buffer: [][]byte{{1, 2, 3}}}
	if _, err := s.handleMessage(context.Background(), NewAudioStart(16000, 2, 1), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.buffer) != 0 {
		t.Fatalf("expected buffer reset on new audio-start, got %d entries", len(sess.buffer))
	}
}

func TestSTTTranscriberErrorYieldsErrorMessage(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("model crashed")}
	s := &STTServer{Transcriber: tr, Logger: fakeLogger{}}
	sess := &sttSession{state: connStream, buffer: [][]byte{{1}}}
	resp, err := s.handleMessage(context.Background(), NewAudioStop(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.Type != TypeError {
		t.Fatalf("expected error message, got %#v", resp)
	}
}

func TestTTSSynthesizeStreamsChunks(t *testing.T) {
	audio := make([]byte, 10)
	for i := range audio {
		audio[i] = byte(i)
	}
	s := &TTSServer{Synthesizer: &fakeSynthesizer{audio: audio, rate: 22050}, Logger: fakeLogger{}, ChunkBytes: 4}
	msgs, err := s.handleMessage(context.Background(), NewSynthesize("Slewing to M31", "en_US-lessac-medium"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1+3+1 { // start + 3 chunks (4,4,2 bytes) + stop
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Type != TypeAudioStart {
		t.Fatalf("expected first message to be audio-start, got %s", msgs[0].Type)
	}
	if msgs[len(msgs)-1].Type != TypeAudioStop {
		t.Fatalf("expected last message to be audio-stop, got %s", msgs[len(msgs)-1].Type)
	}
	var reassembled []byte
	for _, m := range msgs[1 : len(msgs)-1] {
		reassembled = append(reassembled, m.Data.(AudioChunk).Audio...)
	}
	if len(reassembled) != len(audio) {
		t.Fatalf("expected reassembled audio to match, got %d bytes want %d", len(reassembled), len(audio))
	}
}

func TestTTSNoSynthesizerConfiguredReturnsError(t *testing.T) {
	s := &TTSServer{Logger: fakeLogger{}}
	_, err := s.handleMessage(context.Background(), NewSynthesize("hi", ""))
	if err == nil {
		t.Fatalf("expected error when no synthesizer is configured")
	}
}

func TestEndToEndSTTOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr := &fakeTranscriber{text: "point at M31", confidence: 0.93}
	s := &STTServer{Transcriber: tr, Logger: fakeLogger{}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		_ = s.handleConn(context.Background(), r, server)
	}()

	if err := WriteMessage(client, NewAudioStart(16000, 2, 1)); err != nil {
		t.Fatalf("write audio-start: %v", err)
	}
	if err := WriteMessage(client, NewAudioChunk([]byte{1, 2, 3, 4}, 16000, 2, 1)); err != nil {
		t.Fatalf("write audio-chunk: %v", err)
	}
	if err := WriteMessage(client, NewAudioStop()); err != nil {
		t.Fatalf("write audio-stop: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := ReadMessage(bufio.NewReader(client))
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Type != TypeTranscript {
		t.Fatalf("expected transcript, got %s", resp.Type)
	}
	d := resp.Data.(Transcript)
	if d.Text != "point at M31" {
		t.Fatalf("unexpected transcript text: %q", d.Text)
	}

	client.Close()
	<-done
}
