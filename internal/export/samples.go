// Package export ships raw latency samples as Arrow record batches, either to
// an IPC file or to an Arrow Flight endpoint.
package export

import (
	"fmt"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Schema metadata keys.
const (
	MetaModel      = "ortbench.model"
	MetaDevice     = "ortbench.device"
	MetaBackend    = "ortbench.backend"
	MetaInputShape = "ortbench.input_shape"
	MetaWarmup     = "ortbench.warmup"
)

// Batch is the raw sample set of one run.
type Batch struct {
	Model      string
	Device     string
	Backend    string
	InputShape string
	Warmup     int
	Samples    []float64
}

func (b Batch) Schema() *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{MetaModel, MetaDevice, MetaBackend, MetaInputShape, MetaWarmup},
		[]string{b.Model, b.Device, b.Backend, b.InputShape, strconv.Itoa(b.Warmup)},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "iteration", Type: arrow.PrimitiveTypes.Int64},
		{Name: "latency_ms", Type: arrow.PrimitiveTypes.Float64},
	}, &md)
}

// NewRecord builds a record with one row per sample. The caller releases it.
func NewRecord(mem memory.Allocator, b Batch) arrow.Record {
	rb := array.NewRecordBuilder(mem, b.Schema())
	defer rb.Release()

	iters := rb.Field(0).(*array.Int64Builder)
	lat := rb.Field(1).(*array.Float64Builder)
	iters.Reserve(len(b.Samples))
	lat.Reserve(len(b.Samples))
	for i, s := range b.Samples {
		iters.Append(int64(i + 1))
		lat.Append(s)
	}
	return rb.NewRecord()
}

// FromRecord restores a Batch from a record built by NewRecord.
func FromRecord(schema *arrow.Schema, rec arrow.Record) (Batch, error) {
	if rec.NumCols() != 2 {
		return Batch{}, fmt.Errorf("expected 2 columns, got %d", rec.NumCols())
	}
	lat, ok := rec.Column(1).(*array.Float64)
	if !ok {
		return Batch{}, fmt.Errorf("latency_ms column has type %s", rec.Column(1).DataType())
	}

	md := schema.Metadata()
	get := func(k string) string {
		if i := md.FindKey(k); i >= 0 {
			return md.Values()[i]
		}
		return ""
	}
	b := Batch{
		Model:      get(MetaModel),
		Device:     get(MetaDevice),
		Backend:    get(MetaBackend),
		InputShape: get(MetaInputShape),
		Samples:    append([]float64(nil), lat.Float64Values()...),
	}
	if w := get(MetaWarmup); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return Batch{}, fmt.Errorf("invalid %s metadata %q", MetaWarmup, w)
		}
		b.Warmup = n
	}
	return b, nil
}

// WriteFile writes b to path in the Arrow IPC file format.
func WriteFile(path string, b Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create samples file: %w", err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	rec := NewRecord(mem, b)
	defer rec.Release()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create IPC writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize samples file: %w", err)
	}
	return f.Close()
}

// ReadFile reads a samples file written by WriteFile.
func ReadFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return Batch{}, fmt.Errorf("failed to open IPC file: %w", err)
	}
	defer r.Close()

	if r.NumRecords() != 1 {
		return Batch{}, fmt.Errorf("expected 1 record batch, got %d", r.NumRecords())
	}
	rec, err := r.Record(0)
	if err != nil {
		return Batch{}, err
	}
	return FromRecord(r.Schema(), rec)
}
