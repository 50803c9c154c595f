// Package toyfile stores generated pseudo-datasets as zstd-compressed JSON
// so toy generation and toy fitting can run as separate batch jobs.
package toyfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/klauspost/compress/zstd"

	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/ports"
)

type toyRecord struct {
	Name       string           `json:"name"`
	Role       sample.Role      `json:"role"`
	TrueParams []nuisance.Value `json:"true_params,omitempty"`
	Events     []sample.Event   `json:"events"`
}

// Store reads and writes toy files.
type Store struct{}

func NewStore() *Store { return &Store{} }

var _ ports.ToyStore = (*Store)(nil)

// WriteToys writes one JSON record per dataset.
func (s *Store) WriteToys(ctx context.Context, path string, toys []*sample.DataSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create toy file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	jenc := json.NewEncoder(enc)
	for _, d := range toys {
		if err := ctx.Err(); err != nil {
			enc.Close()
			return err
		}
		rec := toyRecord{Name: d.Name, Role: d.Role, TrueParams: d.TrueParams, Events: d.Events()}
		if err := jenc.Encode(rec); err != nil {
			enc.Close()
			return fmt.Errorf("failed to encode toy %s: %w", d.Name, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush toy file: %w", err)
	}
	log.Printf("[ToyStore] Wrote %d datasets to %s", len(toys), path)
	return nil
}

// ReadToys reads every dataset of a toy file in order.
func (s *Store) ReadToys(ctx context.Context, path string) ([]*sample.DataSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open toy file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
	}
	defer dec.Close()

	var out []*sample.DataSample
	jdec := json.NewDecoder(dec)
	for jdec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec toyRecord
		if err := jdec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode toy %d in %s: %w", len(out), path, err)
		}
		d := sample.New(rec.Name, rec.Role)
		for _, ev := range rec.Events {
			d.Add(ev.X, ev.Y, ev.Weight)
		}
		d.TrueParams = rec.TrueParams
		out = append(out, d)
	}
	return out, nil
}
