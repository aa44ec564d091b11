package infrastructure

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourusername/ytmux/internal/domain"
)

const maxProgressLine = 1024 * 1024

// ProgressParser extracts a native 0-100 percentage from one line of tool output
type ProgressParser interface {
	Parse(line string) (float64, bool)
}

// ProgressParserFunc adapts a function to ProgressParser
type ProgressParserFunc func(line string) (float64, bool)

// Parse calls f
func (f ProgressParserFunc) Parse(line string) (float64, bool) {
	return f(line)
}

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// PercentParser matches the first "NN.N%" substring on any line
var PercentParser = ProgressParserFunc(func(line string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
})

// YTDLPProgressParser only trusts percentages on yt-dlp's "[download]" status lines
var YTDLPProgressParser = ProgressParserFunc(func(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return 0, false
	}
	return PercentParser(line)
})

// LineProgressSource reads a process output stream line by line and yields the
// percentages its parser recognizes. Lines may end in '\n' or '\r'.
type LineProgressSource struct {
	r       io.Reader
	scanner *bufio.Scanner
	stream  domain.StreamKind
	parser  ProgressParser
	err     error
	done    bool
}

// NewLineProgressSource creates a progress source over r. A nil parser yields no
// samples but still drains r.
func NewLineProgressSource(r io.Reader, stream domain.StreamKind, parser ProgressParser) *LineProgressSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxProgressLine)
	scanner.Split(scanTerminalLines)
	return &LineProgressSource{
		r:       r,
		scanner: scanner,
		stream:  stream,
		parser:  parser,
	}
}

// Next returns the next recognized sample, clamped to [0, 100]
func (s *LineProgressSource) Next() (domain.ProgressSample, bool) {
	if s.done {
		return domain.ProgressSample{}, false
	}

	for s.scanner.Scan() {
		if s.parser == nil {
			continue
		}
		pct, ok := s.parser.Parse(s.scanner.Text())
		if !ok {
			continue
		}
		return domain.ProgressSample{Percent: clampPercent(pct), Stream: s.stream}, true
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		s.err = err
		// keep the pipe flowing so the process never blocks on a full buffer
		io.Copy(io.Discard, s.r)
	}
	return domain.ProgressSample{}, false
}

// Err returns the read error that ended the sequence, if any
func (s *LineProgressSource) Err() error {
	return s.err
}

// scanTerminalLines splits on '\n', '\r' or "\r\n", dropping empty lines
func scanTerminalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	if atEOF && start == len(data) {
		return len(data), nil, nil
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
