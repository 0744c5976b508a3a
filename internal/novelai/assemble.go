package novelai

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyResponseBody is returned when the response carries no body
var ErrEmptyResponseBody = errors.New("empty response body")

// Kind classifies an assembled response
type Kind int

const (
	KindRawImage Kind = iota
	KindArchive
)

func (k Kind) String() string {
	if k == KindArchive {
		return "archive"
	}
	return "raw"
}

// Assembled is a fully drained response body
type Assembled struct {
	Data []byte
	Kind Kind
}

var zipMagic = []byte{0x50, 0x4B}

// Classify reports whether data starts with the zip signature
func Classify(data []byte) Kind {
	if bytes.HasPrefix(data, zipMagic) {
		return KindArchive
	}
	return KindRawImage
}

// Assemble drains r chunk by chunk until EOF into one buffer
func Assemble(r io.Reader) (Assembled, error) {
	if r == nil {
		return Assembled{}, ErrEmptyResponseBody
	}

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Assembled{}, fmt.Errorf("read response body: %w", err)
		}
	}

	data := buf.Bytes()
	return Assembled{Data: data, Kind: Classify(data)}, nil
}
