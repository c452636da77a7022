package dataset

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"crossfilter/internal/blob"
)

//go:embed data/gapminder_sample.csv
var gapminderSample []byte

// Source opens the raw CSV for a dataset.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Describe() string
}

// BlobSource reads the dataset from an object store key.
type BlobSource struct {
	Store blob.Store
	Key   string
}

func (s BlobSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("blob source %s: store not configured", s.Key)
	}
	_, rc, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s BlobSource) Describe() string {
	if s.Store == nil {
		return "blob:" + s.Key
	}
	return fmt.Sprintf("%s:%s", s.Store.Driver(), s.Key)
}

// EmbeddedSource serves the gapminder sample compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(gapminderSample)), nil
}

func (EmbeddedSource) Describe() string { return "embedded:gapminder_sample.csv" }

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

func (SourceFunc) Describe() string { return "func" }
