package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

// Reader serves a segment's dictionary from memory and its document vectors
// from disk. It is safe for concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	header   Header
	dict     []DictEntry
	termIDs  map[string]int
	table    []DocEntry
	docIDs   map[string]int
	tokens   int64
	// identifies the segment's content; see Fingerprint
	fingerprint string
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := Header{
		Magic:       magic,
		Version:     binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:    binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset:  int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:    int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		TableOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		TableSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		VecOffset:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		VecSize:     int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	tableBytes := make([]byte, header.TableSize)
	if _, err := f.ReadAt(tableBytes, header.TableOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.TableOffset+header.TableSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("segment %s: dictionary checksum mismatch", path)
	}
	if crc32.ChecksumIEEE(tableBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("segment %s: document table checksum mismatch", path)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var table []DocEntry
	if err := json.Unmarshal(tableBytes, &table); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}

	r := &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		termIDs:  make(map[string]int, len(dict)),
		table:    table,
		docIDs:   make(map[string]int, len(table)),
		fingerprint: fmt.Sprintf("%08x%08x-%d-%d",
			binary.LittleEndian.Uint32(footer[0:4]), binary.LittleEndian.Uint32(footer[4:8]),
			header.TermCount, header.DocCount),
	}
	for i, e := range dict {
		r.termIDs[e.Term] = i
	}
	for i, e := range table {
		r.docIDs[e.ID] = i
		r.tokens += int64(e.Tokens)
	}
	return r, nil
}

func (r *Reader) NumberOfTerms() int { return len(r.dict) }

func (r *Reader) DocumentCount() int { return len(r.table) }

func (r *Reader) Frequency(termIndex int) int {
	if termIndex < 0 || termIndex >= len(r.dict) {
		return 0
	}
	return r.dict[termIndex].DocFreq
}

func (r *Reader) FindTermIndex(term string) int {
	if id, ok := r.termIDs[term]; ok {
		return id
	}
	return termdict.NotFound
}

func (r *Reader) TermAsString(termIndex int) string {
	if termIndex < 0 || termIndex >= len(r.dict) {
		return ""
	}
	return r.dict[termIndex].Term
}

// Vector reads one document's term vector from disk.
// Fingerprint identifies the segment by the checksums of its dictionary and
// document table and by its term and document counts. Stores exported from
// the segment carry it so a reader can tell they belong together.
func (r *Reader) Fingerprint() string {
	return r.fingerprint
}

func (r *Reader) Vector(ctx context.Context, doc int) (index.DocVector, error) {
	if err := ctx.Err(); err != nil {
		return index.DocVector{}, err
	}
	if doc < 0 || doc >= len(r.table) {
		return index.DocVector{}, fmt.Errorf("document %d: %w", doc, apperrors.ErrDocumentNotFound)
	}
	entry := r.table[doc]
	buf := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(buf, r.header.VecOffset+entry.Offset); err != nil {
		return index.DocVector{}, fmt.Errorf("reading vector for %q: %w", entry.ID, err)
	}
	vec := index.DocVector{Length: entry.Tokens}
	if err := json.Unmarshal(buf, &vec.Terms); err != nil {
		return index.DocVector{}, fmt.Errorf("parsing vector for %q: %w", entry.ID, err)
	}
	return vec, nil
}

func (r *Reader) ReadTermFrequencies(ctx context.Context, doc int, freqs []int, docCounter []int) (int, error) {
	vec, err := r.Vector(ctx, doc)
	if err != nil {
		return 0, err
	}
	if err := vec.CheckTerms(termSpace(freqs, docCounter)); err != nil {
		return 0, fmt.Errorf("document %d: %w", doc, err)
	}
	return vec.Accumulate(freqs, docCounter), nil
}

// termSpace is the number of term slots both buffers can take.
func termSpace(freqs []int, docCounter []int) int {
	if docCounter != nil {
		return min(len(freqs), len(docCounter))
	}
	return len(freqs)
}

// DocIndex returns the document index of an external id.
func (r *Reader) DocIndex(externalID string) (int, bool) {
	doc, ok := r.docIDs[externalID]
	return doc, ok
}

// ExternalID returns the external id of a document index.
func (r *Reader) ExternalID(doc int) string {
	if doc < 0 || doc >= len(r.table) {
		return ""
	}
	return r.table[doc].ID
}

// TokenCount is the total number of tokens across all documents.
func (r *Reader) TokenCount() int64 { return r.tokens }

func (r *Reader) Path() string { return r.filePath }

func (r *Reader) Close() error {
	return r.file.Close()
}
