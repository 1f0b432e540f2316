package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/yourusername/craft-server-manager/internal/protocol"
)

// MaxLineBytes caps a single console line; longer output is split
const MaxLineBytes = 1 << 20

// LineReader splits a byte stream into console lines
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader wraps r
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024), max: MaxLineBytes}
}

// Next returns the next line without its terminator. A final line with
// no newline is still returned; the following call reports the error.
func (lr *LineReader) Next() (string, error) {
	var buf []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return lineText(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(buf) >= lr.max {
				return lineText(buf), nil
			}
		default:
			if len(buf) > 0 {
				return lineText(buf), nil
			}
			return "", err
		}
	}
}

func lineText(b []byte) string {
	return strings.ToValidUTF8(strings.TrimRight(string(b), "\r\n"), "\uFFFD")
}

// read consumes the merged output of one generation until EOF
func (s *Supervisor) read(gen *generation) {
	defer close(gen.readerDone)
	defer gen.stdout.Close()

	lines := NewLineReader(gen.stdout)
	for {
		line, err := lines.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("[Reader] Output read ended: %v", err)
			}
			return
		}
		s.handleLine(gen, line)
	}
}

func (s *Supervisor) handleLine(gen *generation, line string) {
	event := s.opts.Classifier.Classify(line)

	s.mu.Lock()
	changed := false
	if s.gen == gen {
		changed = s.roster.Apply(event)
	}
	var players []string
	if changed || event.Kind == protocol.KindPlayerList {
		players = s.roster.Names()
	}
	s.mu.Unlock()

	s.emit(Event{
		Kind:       EventOutput,
		Generation: gen.id,
		Output:     &event,
		Players:    players,
	})
}
