package audio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestIsBluetooth(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Headset (BT)", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
		{"Batman", false},
	}
	for _, tt := range tests {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAmplifyClips(t *testing.T) {
	if got := amplify(1000, 4); got != 4000 {
		t.Errorf("amplify(1000, 4) = %d", got)
	}
	if got := amplify(20000, 4); got != 32767 {
		t.Errorf("amplify(20000, 4) = %d, want clip", got)
	}
	if got := amplify(-20000, 4); got != -32768 {
		t.Errorf("amplify(-20000, 4) = %d, want clip", got)
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContextPCM(nil)

	d, err := FindDevice(ctx, "")
	if err != nil || d != nil {
		t.Errorf("default device = %v, %v; want nil, nil", d, err)
	}

	d, err = FindDevice(ctx, "fake")
	if err != nil || d == nil || d.Name != "fake" {
		t.Errorf("named device = %v, %v", d, err)
	}

	if _, err := FindDevice(ctx, "missing"); err == nil {
		t.Error("expected error for unknown device")
	}

	ctx.NoDevices = true
	if _, err := FindDevice(ctx, ""); !errors.Is(err, ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}

	ctx.DevicesErr = errors.New("backend gone")
	if _, err := FindDevice(ctx, ""); err == nil || errors.Is(err, ErrNoDevices) {
		t.Errorf("err = %v, want enumeration error", err)
	}
}

func TestPickDevice(t *testing.T) {
	devices := []DeviceInfo{{Name: "one"}, {Name: "two"}, {Name: "three"}}
	tests := []struct {
		keys string
		want int
	}{
		{"\r", 0},
		{"j\r", 1},
		{"jjjj\r", 2},
		{"jk\r", 0},
		{"\x1b[B", 1},
	}
	for _, tt := range tests {
		keys := tt.keys
		if strings.HasPrefix(keys, "\x1b") {
			keys += "\r"
		}
		got, err := pickDevice(&keyReader{keys: keys}, io.Discard, devices)
		if err != nil {
			t.Fatalf("pickDevice(%q): %v", tt.keys, err)
		}
		if got != tt.want {
			t.Errorf("pickDevice(%q) = %d, want %d", tt.keys, got, tt.want)
		}
	}
}

func TestPickDeviceCancel(t *testing.T) {
	var out bytes.Buffer
	_, err := pickDevice(&keyReader{keys: "j\x03"}, &out, []DeviceInfo{{Name: "a"}, {Name: "AirPods"}})
	if !errors.Is(err, ErrSelectionCancelled) {
		t.Errorf("err = %v, want ErrSelectionCancelled", err)
	}
	if !strings.Contains(out.String(), "Lower audio quality") {
		t.Error("bluetooth device not flagged")
	}
}

// keyReader returns escape sequences as one read, like a raw terminal.
type keyReader struct {
	keys string
}

func (k *keyReader) Read(p []byte) (int, error) {
	if k.keys == "" {
		return 0, io.EOF
	}
	n := 1
	if strings.HasPrefix(k.keys, "\x1b[") && len(k.keys) >= 3 {
		n = 3
	}
	copy(p, k.keys[:n])
	k.keys = k.keys[n:]
	return n, nil
}

func TestFakeCaptureReplaysPCM(t *testing.T) {
	pcm := make([]byte, 5000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	ctx := NewFakeContextPCM(pcm)
	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}

	var got []byte
	dev.SetCallback(func(data []byte, frames uint32) {
		if int(frames)*2 != len(data) {
			t.Errorf("frames = %d for %d bytes", frames, len(data))
		}
		got = append(got, data...)
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	dev.Stop()
	dev.Close()

	if !bytes.Equal(got, pcm) {
		t.Errorf("replayed %d bytes, want %d", len(got), len(pcm))
	}
	if !dev.(*FakeCapture).Closed() {
		t.Error("capture not closed")
	}
}

func TestFakeContextCaptureError(t *testing.T) {
	ctx := NewFakeContextPCM(nil)
	ctx.CaptureErr = errors.New("permission denied")
	if _, err := ctx.NewCapture(nil, CaptureConfig{}); err == nil {
		t.Error("expected capture error")
	}
}
