package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// DefaultPort is used when the Flight address has no port.
	DefaultPort    = 3000
	DefaultTimeout = 30 * time.Second
)

// FlightClient uploads sample batches with DoPut.
type FlightClient struct {
	client  flight.Client
	addr    string
	timeout time.Duration
}

func NewFlightClient(addr string) (*FlightClient, error) {
	if addr == "" {
		return nil, errors.New("flight address is empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	return &FlightClient{addr: addr, timeout: DefaultTimeout}, nil
}

func (fc *FlightClient) Addr() string {
	return fc.addr
}

// Connect creates the gRPC channel. The connection itself is established lazily.
func (fc *FlightClient) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddleware(fc.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	fc.client = client
	return nil
}

func (fc *FlightClient) Close() error {
	if fc.client != nil {
		err := fc.client.Close()
		fc.client = nil
		return err
	}
	return nil
}

// Descriptor names the flight a batch is uploaded under.
func Descriptor(b Batch) *flight.FlightDescriptor {
	return &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"ortbench", b.Model, b.Device},
	}
}

// DoPut streams b as a single record batch and waits for the server to
// acknowledge it.
func (fc *FlightClient) DoPut(ctx context.Context, b Batch) error {
	if fc.client == nil {
		return fmt.Errorf("client not connected, call Connect() first")
	}
	if len(b.Samples) == 0 {
		return fmt.Errorf("no samples provided")
	}

	ctx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()

	stream, err := fc.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	mem := memory.NewGoAllocator()
	rec := NewRecord(mem, b)
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	w.SetFlightDescriptor(Descriptor(b))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("DoPut rejected: %w", err)
		}
	}
}
