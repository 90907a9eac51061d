package cli

import (
	"bufio"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

const promptText = "> "

// lineReader is satisfied by *term.Terminal.
type lineReader interface {
	ReadLine() (string, error)
}

type scanReader struct {
	scanner *bufio.Scanner
}

func (s scanReader) ReadLine() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// syncWriter serializes writes from the input loop and the update renderer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// openConsole returns a line editor when both ends are a terminal and a plain line scanner
// otherwise. restore must be called before the process writes to the terminal again.
func openConsole(in io.Reader, out io.Writer) (lr lineReader, w io.Writer, restore func(), err error) {
	inFile, inOK := in.(*os.File)
	outFile, outOK := out.(*os.File)

	if inOK && outOK && term.IsTerminal(int(inFile.Fd())) && term.IsTerminal(int(outFile.Fd())) {
		state, err := term.MakeRaw(int(inFile.Fd()))
		if err != nil {
			return nil, nil, nil, err
		}

		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{inFile, outFile}, promptText)

		if width, height, err := term.GetSize(int(outFile.Fd())); err == nil {
			t.SetSize(width, height)
		}

		return t, t, func() { term.Restore(int(inFile.Fd()), state) }, nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	return scanReader{scanner: scanner}, &syncWriter{w: out}, func() {}, nil
}
