// Package persist encodes per-container assembly records into blobs and
// decodes them back with partial recovery: one malformed assembly entry
// is skipped, the rest of the container still loads.
//
// Blobs are RFC 8785 canonical JSON, so the same records always produce
// the same bytes.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/assemblies/internal/ir"
)

// ErrUnsupportedVersion means the blob was written by an incompatible
// record format.
var ErrUnsupportedVersion = errors.New("unsupported record version")

// BlobStore holds one opaque blob per container.
// Implemented by store.Store.
type BlobStore interface {
	LoadBlob(ctx context.Context, container string) ([]byte, error)
	SaveBlob(ctx context.Context, container string, blob []byte) error
}

// Serializer implements engine.RecordStore over a BlobStore.
type Serializer struct {
	blobs BlobStore
}

// NewSerializer creates a Serializer writing through blobs.
func NewSerializer(blobs BlobStore) *Serializer {
	return &Serializer{blobs: blobs}
}

// LoadRecords decodes the stored records for a container. A missing blob
// yields no records. Entries that fail to decode are logged and skipped.
func (s *Serializer) LoadRecords(ctx context.Context, container string) ([]ir.AssemblyRecord, error) {
	blob, err := s.blobs.LoadBlob(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if blob == nil {
		return nil, nil
	}

	rec, skipped, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("load records for %s: %w", container, err)
	}
	for _, e := range skipped {
		slog.Warn("skipping stored assembly", "container", container, "error", e)
	}
	if rec.Container != container {
		slog.Warn("stored records name another container",
			"container", container,
			"stored_container", rec.Container,
		)
	}
	return rec.Assemblies, nil
}

// SaveRecords encodes and stores a container's records.
func (s *Serializer) SaveRecords(ctx context.Context, rec ir.ContainerRecord) error {
	blob, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("save records for %s: %w", rec.Container, err)
	}
	if err := s.blobs.SaveBlob(ctx, rec.Container, blob); err != nil {
		return fmt.Errorf("save records for %s: %w", rec.Container, err)
	}
	return nil
}

// Encode renders a container record as canonical JSON.
func Encode(rec ir.ContainerRecord) ([]byte, error) {
	if rec.Version == "" {
		rec.Version = ir.RecordVersion
	}
	data, err := ir.MarshalCanonical(rec.ToIR())
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// envelope is the container record with assemblies left undecoded, so
// each one can fail on its own.
type envelope struct {
	Version    string            `json:"version"`
	Container  string            `json:"container"`
	Session    string            `json:"session"`
	Tick       int64             `json:"tick"`
	Assemblies []json.RawMessage `json:"assemblies"`
}

// DecodeError describes one assembly entry that could not be decoded.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("assembly[%d]: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a blob. A broken envelope or an unknown version is an
// error; broken assembly entries are returned as skipped and left out of
// the record.
func Decode(blob []byte) (ir.ContainerRecord, []error, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return ir.ContainerRecord{}, nil, fmt.Errorf("decode record: %w", err)
	}
	if env.Version != ir.RecordVersion {
		return ir.ContainerRecord{}, nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, env.Version)
	}

	rec := ir.ContainerRecord{
		Version:   env.Version,
		Container: env.Container,
		Session:   env.Session,
		Tick:      env.Tick,
	}
	var skipped []error
	for i, raw := range env.Assemblies {
		a, err := decodeAssembly(raw)
		if err != nil {
			skipped = append(skipped, &DecodeError{Index: i, Err: err})
			continue
		}
		rec.Assemblies = append(rec.Assemblies, a)
	}
	return rec, skipped, nil
}

func decodeAssembly(raw json.RawMessage) (ir.AssemblyRecord, error) {
	var a ir.AssemblyRecord
	if err := json.Unmarshal(raw, &a); err != nil {
		return ir.AssemblyRecord{}, err
	}
	if a.Definition == "" {
		return ir.AssemblyRecord{}, errors.New("missing definition")
	}
	if len(a.Members) == 0 && len(a.Positions) == 0 {
		return ir.AssemblyRecord{}, errors.New("no members")
	}
	return a, nil
}
