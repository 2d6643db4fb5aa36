package wyoming

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestClientDialSendReceiveAgainstSTTServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &STTServer{Transcriber: &fakeTranscriber{text: "point at M31", confidence: 0.9}, Logger: fakeLogger{}}
	go s.Serve(ctx, ln)

	client, err := Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.Send(NewAudioStart(16000, 2, 1)); err != nil {
		t.Fatalf("send audio-start: %v", err)
	}
	if err := client.Send(NewAudioChunk([]byte{1, 2, 3, 4}, 16000, 2, 1)); err != nil {
		t.Fatalf("send audio-chunk: %v", err)
	}
	if err := client.Send(NewAudioStop()); err != nil {
		t.Fatalf("send audio-stop: %v", err)
	}

	resp, err := client.Receive(time.Now().Add(2 * time.Second))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.Type != TypeTranscript {
		t.Fatalf("expected transcript, got %s", resp.Type)
	}
	d := resp.Data.(Transcript)
	if d.Text != "point at M31" {
		t.Fatalf("unexpected text: %q", d.Text)
	}
}
