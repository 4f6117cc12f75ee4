package audio

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dhowden/tag"
	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
)

// SupportedFormats returns the container names the decoder handles
func SupportedFormats() []string {
	return []string{"mp3", "wav", "flac", "webm", "ogg", "opus", "m4a", "aac"}
}

// IsSupported checks if a container name or mime type can be decoded
func IsSupported(format string) bool {
	_, ok := canonical(format)
	return ok
}

// Seekable reports whether a network stream of format can be restarted
// mid-file from a byte offset.
func Seekable(format string) bool {
	name, _ := canonical(format)
	return name == "mp3"
}

// transcoded marks containers decoded through ffmpeg
const transcoded = "ffmpeg"

func canonical(format string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(format))
	if i := strings.IndexByte(f, ';'); i >= 0 {
		f = f[:i]
	}
	switch f {
	case "mp3", "audio/mpeg", "audio/mp3", "mpeg":
		return "mp3", true
	case "wav", "wave", "audio/wav", "audio/x-wav", "audio/wave":
		return "wav", true
	case "flac", "audio/flac", "audio/x-flac":
		return "flac", true
	case "webm", "ogg", "opus", "m4a", "m4b", "mp4", "aac", "alac",
		"audio/webm", "audio/ogg", "audio/opus", "audio/mp4", "audio/aac", "audio/x-m4a", "audio/m4a":
		return transcoded, true
	}
	return f, false
}

// Decode picks a decoder for format, which may be a container name or a
// mime type. Unknown formats wrap ErrInvalidFormat.
func Decode(r io.ReadCloser, format string) (beep.StreamSeekCloser, beep.Format, error) {
	name, _ := canonical(format)
	switch name {
	case "mp3":
		return mp3.Decode(r)
	case "wav":
		return wav.Decode(r)
	case "flac":
		return flac.Decode(r)
	case transcoded:
		return decodeFFmpeg(r, 0)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, format)
	}
}

// SniffFormat names the audio container of head, or "unknown".
func SniffFormat(head []byte) string {
	if _, fileType, err := tag.Identify(bytes.NewReader(head)); err == nil && fileType != tag.UnknownFileType {
		return strings.ToLower(string(fileType))
	}
	switch {
	case bytes.HasPrefix(head, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	case bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && string(head[8:12]) == "WAVE":
		return "wav"
	case bytes.HasPrefix(head, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(head, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(head, []byte("ID3")), len(head) > 1 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return "unknown"
}
