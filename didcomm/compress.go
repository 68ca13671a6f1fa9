package didcomm

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// maxInflated caps the size of a decompressed message.
const maxInflated = 4 << 20

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxInflated+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %w", ErrMalformedEnvelope, err)
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrMalformedEnvelope, maxInflated)
	}

	return out, nil
}
