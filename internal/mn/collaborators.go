package mn

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// ByteStore persists object content. Keys are chosen by the service; the
// returned url is recorded on the object and used for every later access.
// Put checks the number of bytes written against size unless size is negative.
type ByteStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (url string, err error)
	Open(ctx context.Context, url string) (io.ReadCloser, error)
	Exists(ctx context.Context, url string) (bool, error)
	Delete(ctx context.Context, url string) error
}

// Fetcher streams the bytes of proxy objects from their remote location.
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Validator checks science metadata payloads for formats it understands.
// Formats it does not know are accepted.
type Validator interface {
	Validate(ctx context.Context, formatID string, r io.Reader) error
}

// NopValidator accepts everything.
type NopValidator struct{}

func (NopValidator) Validate(context.Context, string, io.Reader) error { return nil }

// DescriptorCodec converts descriptors to and from their wire encoding.
type DescriptorCodec interface {
	Encode(d *Descriptor) ([]byte, error)
	Decode(b []byte) (*Descriptor, error)
	// ParseResourceMap returns the member identifiers listed by an aggregation document.
	ParseResourceMap(r io.Reader) ([]string, error)
}

// Logger provides structured logging for the service layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
