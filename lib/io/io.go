package iolib

import (
	"io"

	"github.com/pkg/errors"
)

func WriteFull(w io.Writer, buf []byte) (uint, error) {
	total := uint(0)
	for total < uint(len(buf)) {
		n, err := w.Write(buf[total:])
		total += uint(n)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// ReadSome performs a single read into a fresh buffer of at most size bytes.
// io.EOF is only returned when nothing was read.
func ReadSome(r io.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := r.Read(buf)
	if n > 0 {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return buf[:n], err
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}
