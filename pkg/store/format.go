package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/go-docstore/pkg/domain"
)

const (
	// Magic bytes to identify the binary snapshot format
	MagicBytes = "GODB"
	// Current version
	FormatVersion = 1

	flagCompressed uint8 = 1 << 0

	// An lz4 block never expands its input by more than this factor
	maxCompressionRatio = 255
)

// FileHeader represents the header of a binary snapshot
type FileHeader struct {
	Magic     [4]byte // "GODB"
	Version   uint8   // Format version
	Flags     uint8   // bit 0: payload is an lz4 block
	Reserved  [2]byte // Reserved for future use
	RawLength uint32  // Length of the msgpack payload before compression
}

// WriteHeader writes the file header to the given writer
func WriteHeader(w io.Writer, flags uint8, rawLength int) error {
	header := FileHeader{
		Magic:     [4]byte{'G', 'O', 'D', 'B'},
		Version:   FormatVersion,
		Flags:     flags,
		RawLength: uint32(rawLength),
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates the file header
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if string(header.Magic[:]) != MagicBytes {
		return nil, fmt.Errorf("invalid file format: expected %s, got %s", MagicBytes, string(header.Magic[:]))
	}

	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported file version: %d", header.Version)
	}

	return &header, nil
}

// snapshotData is the msgpack payload of a binary snapshot
type snapshotData struct {
	Collections map[string][]map[string]interface{} `msgpack:"collections"`
}

// isBinarySnapshot reports whether data starts with the binary magic bytes
func isBinarySnapshot(data []byte) bool {
	return bytes.HasPrefix(data, []byte(MagicBytes))
}

func encodeBinary(collections map[string][]domain.Document) ([]byte, error) {
	payload := snapshotData{Collections: make(map[string][]map[string]interface{}, len(collections))}
	for name, docs := range collections {
		list := make([]map[string]interface{}, len(docs))
		for i, doc := range docs {
			list[i] = map[string]interface{}(doc)
		}
		payload.Collections[name] = list
	}

	msgpackData, err := msgpack.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}

	compressedData := make([]byte, lz4.CompressBlockBound(len(msgpackData)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(msgpackData, compressedData, hashTable[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}

	// Incompressible payloads are stored raw
	flags := flagCompressed
	body := compressedData[:n]
	if n == 0 || n >= len(msgpackData) {
		flags = 0
		body = msgpackData
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, flags, len(msgpackData)); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

func decodeBinary(data []byte) (map[string][]domain.Document, error) {
	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("invalid file header: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	if header.Flags&flagCompressed != 0 {
		if int64(header.RawLength) > int64(len(body))*maxCompressionRatio {
			return nil, fmt.Errorf("invalid file header: raw length %d is impossible for a %d byte body", header.RawLength, len(body))
		}
		decompressedData := make([]byte, header.RawLength)
		n, err := lz4.UncompressBlock(body, decompressedData)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress data: %w", err)
		}
		body = decompressedData[:n]
	}

	var payload snapshotData
	if err := msgpack.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode MessagePack: %w", err)
	}

	collections := make(map[string][]domain.Document, len(payload.Collections))
	for name, list := range payload.Collections {
		docs := make([]domain.Document, len(list))
		for i, doc := range list {
			docs[i] = domain.Document(doc)
		}
		collections[name] = docs
	}
	return collections, nil
}
