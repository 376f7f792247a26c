package blob

import (
	"context"
	"fmt"

	"github.com/golang/snappy"
)

// Compressed wraps a Store and snappy-encodes objects at rest.
type Compressed struct {
	inner Store
}

// NewCompressed wraps inner.
func NewCompressed(inner Store) *Compressed {
	return &Compressed{inner: inner}
}

func (c *Compressed) Put(ctx context.Context, key string, data []byte) error {
	return c.inner.Put(ctx, key+".sz", snappy.Encode(nil, data))
}

func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	enc, err := c.inner.Get(ctx, key+".sz")
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, enc)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrDownloadFailed, key, err)
	}
	return data, nil
}

func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key+".sz")
}
