// Package reader connects to exchange feeds and pushes raw frames into the
// dispatcher's channel.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Source produces raw frames for one route until its context is cancelled.
type Source interface {
	Start(ctx context.Context) error
	Stop()
}

// inflate decodes a binary websocket frame. Huobi gzips every frame; some
// venues send raw deflate.
func inflate(data []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		r, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip frame: %w", err)
		}
	} else {
		r = flate.NewReader(bytes.NewReader(data))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate frame: %w", err)
	}
	return out, nil
}
