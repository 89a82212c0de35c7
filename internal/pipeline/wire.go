package pipeline

import (
	"bufio"
	"encoding/gob"
	"io"
)

// encoder/decoder frame Order and Response records as gob values over the
// driver/worker pipes, the same serialisation the teacher's ron protocol
// uses for its command/response records (internal/ron/server.go).
type encoder struct {
	enc *gob.Encoder
	w   *bufio.Writer
}

func newEncoder(w io.Writer) *encoder {
	bw := bufio.NewWriter(w)
	return &encoder{enc: gob.NewEncoder(bw), w: bw}
}

func (e *encoder) Encode(v interface{}) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	return e.w.Flush()
}

type decoder struct {
	dec *gob.Decoder
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{dec: gob.NewDecoder(bufio.NewReader(r))}
}

func (d *decoder) Decode(v interface{}) error {
	return d.dec.Decode(v)
}

// NewWorkerCodec wraps a worker process's stdin/stdout in the same gob
// framing the driver uses, exposing it as plain decode/encode closures so
// the worker package (and the entrypoint that wires it up) never needs to
// import the driver-side encoder/decoder types directly.
func NewWorkerCodec(r io.Reader, w io.Writer) (decode func(v interface{}) error, encode func(v interface{}) error) {
	dec := newDecoder(r)
	enc := newEncoder(w)
	return dec.Decode, enc.Encode
}
