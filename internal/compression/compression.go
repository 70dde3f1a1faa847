/*
 * Copyright (c) 2026 The Laterbase Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package compression provides configurable compression for Laterbase's
replication traffic.

A StoreEvents message can carry an arbitrary number of event values;
batching several of them and compressing the batch before it crosses
the transport (§4.6) cuts bandwidth on catch-up syncs, where a lagging
replica may receive thousands of events in one message. Four algorithms
are supported, selectable per replica:

  - gzip:   stdlib, used as the zero-dependency fallback
  - lz4:    fast, moderate ratio (github.com/pierrec/lz4/v4)
  - snappy: very fast, lower ratio (github.com/golang/snappy)
  - zstd:   best ratio, configurable speed/ratio tradeoff (github.com/klauspost/compress/zstd)
*/
package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmGzip
	AlgorithmLZ4
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses a compression algorithm from its string name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return AlgorithmNone, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Level represents a compression level (speed/ratio tradeoff).
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 5
	LevelBest    Level = 9
)

// Config holds compression configuration.
type Config struct {
	Algorithm        Algorithm `json:"algorithm"`
	Level            Level     `json:"level"`
	MinSize          int       `json:"min_size"`          // below this, store uncompressed
	BatchSize        int       `json:"batch_size"`        // entries per batch, advisory for callers
	BatchTimeout     int       `json:"batch_timeout_ms"`  // max wait time for a batch, advisory for callers
	DictionaryEnable bool      `json:"dictionary_enable"` // reserved; not yet honoured by any algorithm
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Algorithm:    AlgorithmZstd,
		Level:        LevelDefault,
		MinSize:      256,
		BatchSize:    100,
		BatchTimeout: 10,
	}
}

// Errors.
var (
	ErrInvalidHeader    = errors.New("compression: invalid frame header")
	ErrUnsupportedAlgo  = errors.New("compression: unsupported algorithm")
	ErrDecompressFailed = errors.New("compression: decompression failed")
)

// frame markers: every Compress output is tagged so Decompress knows
// whether the payload was actually run through an algorithm or stored
// verbatim because it was below MinSize.
const (
	markerStored   byte = 0x00
	markerCompress byte = 0x01
)

// Compressor compresses and decompresses byte slices using a configured
// algorithm.
type Compressor struct {
	config Config
}

// NewCompressor creates a new compressor.
func NewCompressor(config Config) *Compressor {
	return &Compressor{config: config}
}

// Compress compresses data with the configured algorithm, unless data is
// smaller than config.MinSize, in which case it is stored verbatim
// (still tagged, so Decompress works uniformly either way).
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) < c.config.MinSize || c.config.Algorithm == AlgorithmNone {
		out := make([]byte, 1+len(data))
		out[0] = markerStored
		copy(out[1:], data)
		return out, nil
	}

	body, err := encode(c.config.Algorithm, c.config.Level, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(body))
	out[0] = markerCompress
	copy(out[1:], body)
	return out, nil
}

// Decompress reverses Compress. algo must be the algorithm the data was
// compressed with (the TCP transport's frame header carries it alongside
// the payload, see internal/transport).
func (c *Compressor) Decompress(data []byte, algo Algorithm) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidHeader
	}
	marker, body := data[0], data[1:]
	switch marker {
	case markerStored:
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case markerCompress:
		return decode(algo, body)
	default:
		return nil, ErrInvalidHeader
	}
}

func encode(algo Algorithm, level Level, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch algo {
	case AlgorithmGzip:
		w, err := gzip.NewWriterLevel(&buf, gzipLevel(level))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmLZ4:
		w := lz4.NewWriter(&buf)
		if err := w.Apply(lz4.CompressionLevelOption(lz4CompressionLevel(level))); err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil
	case AlgorithmZstd:
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, err
		}
		if _, err := enc.Write(data); err != nil {
			_ = enc.Close()
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedAlgo
	}
	return buf.Bytes(), nil
}

func decode(algo Algorithm, data []byte) ([]byte, error) {
	switch algo {
	case AlgorithmGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	case AlgorithmLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	case AlgorithmZstd:
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		defer dec.Close()
		out, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	default:
		return nil, ErrUnsupportedAlgo
	}
}

func gzipLevel(l Level) int {
	switch {
	case l <= LevelFastest:
		return gzip.BestSpeed
	case l >= LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func lz4CompressionLevel(l Level) lz4.CompressionLevel {
	if l >= LevelBest {
		return lz4.Level9
	}
	return lz4.Level1
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch {
	case l <= LevelFastest:
		return zstd.SpeedFastest
	case l >= LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// BatchCompressor accumulates whole entries, then compresses them
// together as one frame so the algorithm sees more context than any
// single entry would give it alone.
type BatchCompressor struct {
	config  Config
	entries [][]byte
}

// NewBatchCompressor creates a new batch compressor.
func NewBatchCompressor(config Config) *BatchCompressor {
	return &BatchCompressor{config: config}
}

// Add appends an entry to the pending batch.
func (b *BatchCompressor) Add(entry []byte) {
	cp := make([]byte, len(entry))
	copy(cp, entry)
	b.entries = append(b.entries, cp)
}

// Len reports how many entries are pending.
func (b *BatchCompressor) Len() int {
	return len(b.entries)
}

// Flush concatenates the pending entries (each length-prefixed) and
// compresses the result, clearing the batch.
func (b *BatchCompressor) Flush() ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range b.entries {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e)))
		buf.Write(lenBuf[:])
		buf.Write(e)
	}
	b.entries = b.entries[:0]

	compressor := NewCompressor(b.config)
	return compressor.Compress(buf.Bytes())
}

// DecompressBatch reverses Flush, returning the individual entries in
// order.
func (b *BatchCompressor) DecompressBatch(data []byte, algo Algorithm) ([][]byte, error) {
	compressor := NewCompressor(b.config)
	raw, err := compressor.Decompress(data, algo)
	if err != nil {
		return nil, err
	}

	var entries [][]byte
	for len(raw) > 0 {
		if len(raw) < 4 {
			return nil, ErrInvalidHeader
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint64(len(raw)) < uint64(n) {
			return nil, ErrInvalidHeader
		}
		entries = append(entries, raw[:n])
		raw = raw[n:]
	}
	return entries, nil
}
