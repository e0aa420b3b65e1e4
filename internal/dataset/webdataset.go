package dataset

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Sample is one keyed record of a shard: two modalities and a label volume,
// each (D,H,W).
type Sample struct {
	Key string
	T1  *tensor.Dense
	T2  *tensor.Dense
	Seg *tensor.Dense
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending sample buffer exceeded")

const defaultPendingCap = 1024

// ReadShard reads a tar shard whose entries are named <key>.t1.npy,
// <key>.t2.npy and <key>.seg.npy, and returns complete samples in the order
// their last entry appears.
func ReadShard(path string, pendingCap int) ([]Sample, error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open shard")
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	pending := make(map[string]*partial)
	var samples []Sample

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read tar")
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(hdr.Name)
		dot := strings.IndexByte(name, '.')
		if dot <= 0 {
			continue
		}
		key, suffix := name[:dot], strings.ToLower(name[dot+1:])
		switch suffix {
		case "t1.npy", "t2.npy", "seg.npy":
		default:
			// ignore unknown extension
			continue
		}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		arr, err := ReadNpy(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %s", name)
		}
		part := pending[key]
		if part == nil {
			part = &partial{}
			pending[key] = part
		}
		switch suffix {
		case "t1.npy":
			part.t1 = arr
		case "t2.npy":
			part.t2 = arr
		case "seg.npy":
			part.seg = arr
		}

		if len(pending) > pendingCap {
			return nil, ErrPendingOverflow
		}
		if part.ready() {
			samples = append(samples, Sample{Key: key, T1: part.t1, T2: part.t2, Seg: part.seg})
			delete(pending, key)
		}
	}

	if len(pending) > 0 {
		return nil, errors.Errorf("%d samples incomplete", len(pending))
	}
	return samples, nil
}

type partial struct {
	t1, t2, seg *tensor.Dense
}

func (p *partial) ready() bool {
	return p.t1 != nil && p.t2 != nil && p.seg != nil
}

// Shards is a Loader over every sample of a set of shards, read eagerly.
type Shards struct {
	samples []Sample
}

// OpenShards reads all shards in order.
func OpenShards(paths []string) (*Shards, error) {
	s := &Shards{}
	for _, p := range paths {
		samples, err := ReadShard(p, 0)
		if err != nil {
			return nil, err
		}
		s.samples = append(s.samples, samples...)
	}
	return s, nil
}

// Len implements Loader.
func (s *Shards) Len() int { return len(s.samples) }

// Batch implements Loader.
func (s *Shards) Batch(i int) (Batch, error) {
	if i < 0 || i >= len(s.samples) {
		return Batch{}, errors.Errorf("dataset: batch %d out of range [0,%d)", i, len(s.samples))
	}
	smp := s.samples[i]
	return SampleBatch(smp.T1, smp.T2, smp.Seg)
}
