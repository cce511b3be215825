// Package tabular decodes large delimited exports in bounded chunks.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"sync/atomic"

	"github.com/zallek/galaxy/internal/domain"
)

const DefaultChunkSize = 10000

// Schema is derived once from the header row and shared by every chunk of a decode.
type Schema struct {
	Header []string
	Width  int
}

// Index returns the position of a header column, or -1.
func (s *Schema) Index(name string) int {
	for i, h := range s.Header {
		if h == name {
			return i
		}
	}
	return -1
}

type Chunk struct {
	Schema *Schema
	// Offset is the 1-based index of the first record among data rows.
	Offset  int
	Records [][]string
	// BytesRead is the number of source bytes consumed when the chunk was cut.
	BytesRead int64
}

type Decoder struct {
	ChunkSize int
	Comma     rune
}

func NewDecoder(chunkSize int) *Decoder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Decoder{ChunkSize: chunkSize, Comma: ','}
}

// Decode reads r to the end, calling fn with each chunk of at most ChunkSize data
// records, and returns the number of data records. A malformed stream returns a
// *domain.DecodeError; an error from fn is returned as is. Nothing is delivered
// after the first error.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, fn func(Chunk) error) (int, error) {
	counter := &countingReader{r: r}
	cr := csv.NewReader(counter)
	if d.Comma != 0 {
		cr.Comma = d.Comma
	}
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, &domain.DecodeError{Line: 1, Err: errors.New("missing header row")}
		}
		return 0, toDecodeError(err)
	}
	schema := &Schema{Header: header, Width: len(header)}

	size := d.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	total := 0
	buf := make([][]string, 0, size)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		chunk := Chunk{
			Schema:    schema,
			Offset:    total - len(buf) + 1,
			Records:   buf,
			BytesRead: counter.n.Load(),
		}
		if err := fn(chunk); err != nil {
			return err
		}
		buf = make([][]string, 0, size)
		return nil
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, toDecodeError(err)
		}
		buf = append(buf, record)
		total++
		if len(buf) == size {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func toDecodeError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &domain.DecodeError{Line: perr.Line, Err: perr.Err}
	}
	return &domain.DecodeError{Err: err}
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
