// Package segment persists an index.Corpus to a single .spdx file and reads it
// back as a term dictionary plus a random-access term-vector source.
//
// Layout: a 64-byte header, the per-document vectors, the JSON dictionary,
// the JSON document table, and an 8-byte footer holding CRC32 checksums of
// the dictionary and the document table.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 8
	Extension            = ".spdx"
)

// Header is the 64-byte header written at the start of every segment.
type Header struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	DictOffset  int64
	DictSize    int64
	TableOffset int64
	TableSize   int64
	VecOffset   int64
	VecSize     int64
}

// DictEntry is one term of the segment dictionary. Its position in the
// dictionary array is the term index.
type DictEntry struct {
	Term    string `json:"t"`
	DocFreq int    `json:"d"`
}

// DocEntry locates one document's vector relative to the vector section.
type DocEntry struct {
	ID     string `json:"id"`
	Offset int64  `json:"o"`
	Len    int    `json:"l"`
	Tokens int    `json:"n"`
}

// Path returns the segment file path for a base name inside dir.
func Path(dir, baseName string) string {
	return filepath.Join(dir, baseName+Extension)
}

// Writer serialises a Corpus into a segment file.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates <baseName>.spdx containing the corpus. It writes
// to a .tmp file first and renames on success.
func (w *Writer) Write(baseName string, corpus index.Corpus) (string, error) {
	if len(corpus.Terms) != len(corpus.DocFreq) {
		return "", fmt.Errorf("corpus has %d terms but %d frequencies", len(corpus.Terms), len(corpus.DocFreq))
	}
	if len(corpus.ExternalIDs) != len(corpus.Vectors) {
		return "", fmt.Errorf("corpus has %d ids but %d vectors", len(corpus.ExternalIDs), len(corpus.Vectors))
	}
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	finalPath := Path(w.dataDir, baseName)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	vecStart := int64(HeaderSize)
	pos := vecStart
	table := make([]DocEntry, 0, len(corpus.Vectors))
	for i, vec := range corpus.Vectors {
		data, err := json.Marshal(vec.Terms)
		if err != nil {
			return "", fmt.Errorf("marshaling vector for %q: %w", corpus.ExternalIDs[i], err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing vector for %q: %w", corpus.ExternalIDs[i], err)
		}
		table = append(table, DocEntry{
			ID:     corpus.ExternalIDs[i],
			Offset: pos - vecStart,
			Len:    len(data),
			Tokens: vec.Length,
		})
		pos += int64(len(data))
	}
	vecSize := pos - vecStart

	dict := make([]DictEntry, len(corpus.Terms))
	for i, term := range corpus.Terms {
		dict[i] = DictEntry{Term: term, DocFreq: corpus.DocFreq[i]}
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictStart := pos
	pos += int64(len(dictData))

	tableData, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("marshaling document table: %w", err)
	}
	if _, err := f.Write(tableData); err != nil {
		return "", fmt.Errorf("writing document table: %w", err)
	}
	tableStart := pos

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(tableData))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(dict)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(table)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(tableStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(len(tableData)))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(vecStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(vecSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}
