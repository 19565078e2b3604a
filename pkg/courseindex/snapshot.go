package courseindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Snapshot errors.
var (
	ErrCorruptSnapshot     = errors.New("corrupt snapshot")
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")
	ErrIncompleteRead      = errors.New("incomplete read")
)

const (
	snapshotMagic   = "CPIX"
	snapshotVersion = 1

	// maxBlockLen bounds any single length prefix read from a snapshot.
	maxBlockLen = 1 << 30

	// minRecordLen is the smallest encoded record: ID length, title length and
	// prerequisite count, one byte each.
	minRecordLen = 3
)

// Column order inside a snapshot.
const (
	columnLeft = iota
	columnRight
	columnParent
	columnColor
	columnCount
)

// WriteTo serializes the index: the tree links and colours are deinterleaved into
// columns and LZ4-compressed in parallel, followed by the compressed record table.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	slots := len(idx.nodes)

	header := append([]byte(snapshotMagic), snapshotVersion)
	header = binary.AppendUvarint(header, uint64(slots))
	header = binary.AppendUvarint(header, uint64(idx.root))

	_, err := bw.Write(header)
	if err != nil {
		return cw.n, fmt.Errorf("write header: %w", err)
	}

	if slots > 0 {
		encoded, recordsLen := idx.encodeColumns()

		for col, block := range encoded[:columnCount] {
			err = writeBlock(bw, block)
			if err != nil {
				return cw.n, fmt.Errorf("write column %d: %w", col, err)
			}
		}

		_, err = bw.Write(binary.AppendUvarint(nil, uint64(recordsLen)))
		if err != nil {
			return cw.n, fmt.Errorf("write record table len: %w", err)
		}

		err = writeBlock(bw, encoded[columnCount])
		if err != nil {
			return cw.n, fmt.Errorf("write record table: %w", err)
		}
	}

	err = bw.Flush()
	if err != nil {
		return cw.n, fmt.Errorf("flush snapshot: %w", err)
	}

	return cw.n, nil
}

// encodeColumns returns the compressed link and colour columns followed by the
// compressed record table, plus the uncompressed size of that table.
func (idx *Index) encodeColumns() ([columnCount + 1][]byte, int) {
	buffers := [columnCount][]uint32{}
	for col := range buffers {
		buffers[col] = make([]uint32, len(idx.nodes))
	}

	// We deinterleave to achieve a better compression ratio.
	for pos, nd := range idx.nodes {
		buffers[columnLeft][pos] = nd.left
		buffers[columnRight][pos] = nd.right
		buffers[columnParent][pos] = nd.parent
		buffers[columnColor][pos] = uint32(nd.color)
	}

	var encoded [columnCount + 1][]byte

	wg := &sync.WaitGroup{}
	wg.Add(len(buffers))

	for col, buffer := range buffers {
		go func(bufIdx int, buf []uint32) {
			encoded[bufIdx] = CompressUInt32Slice(buf)

			wg.Done()
		}(col, buffer)
	}

	records := idx.encodeRecords()
	encoded[columnCount] = CompressBlock(records)

	wg.Wait()

	return encoded, len(records)
}

func (idx *Index) encodeRecords() []byte {
	var buf []byte

	for _, nd := range idx.nodes[1:] {
		buf = appendString(buf, nd.record.ID)
		buf = appendString(buf, nd.record.Title)
		buf = binary.AppendUvarint(buf, uint64(len(nd.record.Prerequisites)))

		for _, prereq := range nd.record.Prerequisites {
			buf = appendString(buf, prereq)
		}
	}

	return buf
}

// ReadSnapshot restores an index written by WriteTo and verifies its invariants.
func ReadSnapshot(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	header := make([]byte, len(snapshotMagic)+1)

	_, err := io.ReadFull(br, header)
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrCorruptSnapshot, err)
	}

	if string(header[:len(snapshotMagic)]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, header[:len(snapshotMagic)])
	}

	if header[len(snapshotMagic)] != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, header[len(snapshotMagic)])
	}

	slots, err := readLen(br, maxNodes+1)
	if err != nil {
		return nil, fmt.Errorf("%w: read slot count: %w", ErrCorruptSnapshot, err)
	}

	root, err := readLen(br, maxNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: read root: %w", ErrCorruptSnapshot, err)
	}

	if slots == 0 {
		if root != 0 {
			return nil, fmt.Errorf("%w: root #%d in an empty arena", ErrCorruptSnapshot, root)
		}

		return New(), nil
	}

	idx, err := readArena(br, slots, root)
	if err != nil {
		return nil, err
	}

	err = idx.CheckInvariants()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	return idx, nil
}

//nolint:gocognit,cyclop,funlen // the arena is decoded and bounds-checked in one place.
func readArena(br *bufio.Reader, slots, root int) (*Index, error) {
	if root >= slots {
		return nil, fmt.Errorf("%w: root #%d outside %d slots", ErrCorruptSnapshot, root, slots)
	}

	var blocks [columnCount][]byte

	for col := range blocks {
		block, err := readBlock(br)
		if err != nil {
			return nil, fmt.Errorf("%w: read column %d: %w", ErrCorruptSnapshot, col, err)
		}

		blocks[col] = block
	}

	recordsLen, err := readLen(br, maxBlockLen)
	if err != nil {
		return nil, fmt.Errorf("%w: read record table len: %w", ErrCorruptSnapshot, err)
	}

	recordsBlock, err := readBlock(br)
	if err != nil {
		return nil, fmt.Errorf("%w: read record table: %w", ErrCorruptSnapshot, err)
	}

	// Every size below comes from the file, so it is checked against the bytes
	// actually read before anything is allocated from it.
	if slots-1 > recordsLen/minRecordLen {
		return nil, fmt.Errorf("%w: %d slots need more than %d record bytes", ErrCorruptSnapshot, slots, recordsLen)
	}

	err = CheckBlockLen(recordsBlock, recordsLen)
	if err != nil {
		return nil, fmt.Errorf("%w: record table: %w", ErrCorruptSnapshot, err)
	}

	for col, block := range blocks {
		err = CheckBlockLen(block, slots*uint32ByteSize)
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %w", ErrCorruptSnapshot, col, err)
		}
	}

	columns := [columnCount][]uint32{}
	errs := [columnCount]error{}

	wg := &sync.WaitGroup{}
	wg.Add(len(columns))

	for col := range columns {
		go func(bufIdx int) {
			columns[bufIdx] = make([]uint32, slots)
			errs[bufIdx] = DecompressUInt32Slice(blocks[bufIdx], columns[bufIdx])

			wg.Done()
		}(col)
	}

	records, recordsErr := DecompressBlock(recordsBlock, recordsLen)

	wg.Wait()

	err = errors.Join(append(errs[:], recordsErr)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	idx := &Index{nodes: make([]node, slots), root: uint32(root)} //nolint:gosec // bounded by readLen
	dec := recordDecoder{buf: records}

	for pos := range idx.nodes {
		nd := &idx.nodes[pos]
		nd.left = columns[columnLeft][pos]
		nd.right = columns[columnRight][pos]
		nd.parent = columns[columnParent][pos]

		switch columns[columnColor][pos] {
		case uint32(red):
			nd.color = red
		case uint32(black):
			nd.color = black
		default:
			return nil, fmt.Errorf("%w: node #%d has colour %d", ErrCorruptSnapshot, pos, columns[columnColor][pos])
		}

		if int(nd.left) >= slots || int(nd.right) >= slots || int(nd.parent) >= slots {
			return nil, fmt.Errorf("%w: node #%d links outside %d slots", ErrCorruptSnapshot, pos, slots)
		}

		if pos == 0 {
			if nd.left != 0 || nd.right != 0 || nd.parent != 0 || nd.color != black {
				return nil, fmt.Errorf("%w: reserved node #0 is in use", ErrCorruptSnapshot)
			}

			continue
		}

		nd.record, err = dec.record()
		if err != nil {
			return nil, fmt.Errorf("%w: record #%d: %w", ErrCorruptSnapshot, pos, err)
		}
	}

	if len(dec.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing record bytes", ErrCorruptSnapshot, len(dec.buf))
	}

	return idx, nil
}

// SaveFile writes a snapshot of the index to path and returns its size.
func (idx *Index) SaveFile(path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	written, err := idx.WriteTo(file)
	if err != nil {
		file.Close()

		return written, err
	}

	err = file.Close()
	if err != nil {
		return written, fmt.Errorf("close file: %w", err)
	}

	return written, nil
}

// LoadFile reads a snapshot written by SaveFile.
func LoadFile(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	defer file.Close()

	return ReadSnapshot(file)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)

	return n, err
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))

	return append(buf, s...)
}

func writeBlock(w io.Writer, block []byte) error {
	_, err := w.Write(binary.AppendUvarint(nil, uint64(len(block))))
	if err != nil {
		return err
	}

	_, err = w.Write(block)

	return err
}

func readLen(br *bufio.Reader, limit int) (int, error) {
	v, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, err
	}

	if v > uint64(limit) {
		return 0, fmt.Errorf("length %d exceeds %d", v, limit)
	}

	return int(v), nil //nolint:gosec // bounded by limit
}

func readBlock(br *bufio.Reader) ([]byte, error) {
	blockLen, err := readLen(br, maxBlockLen)
	if err != nil {
		return nil, err
	}

	// The buffer grows with the data that is really there, not with the prefix.
	block, err := io.ReadAll(io.LimitReader(br, int64(blockLen)))
	if err != nil {
		return nil, fmt.Errorf("read block: %w", err)
	}

	if len(block) != blockLen {
		return nil, fmt.Errorf("%w: %d instead of %d", ErrIncompleteRead, len(block), blockLen)
	}

	return block, nil
}

type recordDecoder struct {
	buf []byte
}

func (dec *recordDecoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(dec.buf)
	if n <= 0 {
		return 0, ErrIncompleteRead
	}

	dec.buf = dec.buf[n:]

	return v, nil
}

func (dec *recordDecoder) str() (string, error) {
	size, err := dec.uvarint()
	if err != nil {
		return "", err
	}

	if size > uint64(len(dec.buf)) {
		return "", fmt.Errorf("%w: string of %d bytes, %d left", ErrIncompleteRead, size, len(dec.buf))
	}

	s := string(dec.buf[:size])
	dec.buf = dec.buf[size:]

	return s, nil
}

func (dec *recordDecoder) record() (CourseRecord, error) {
	var (
		rec CourseRecord
		err error
	)

	rec.ID, err = dec.str()
	if err != nil {
		return rec, fmt.Errorf("id: %w", err)
	}

	rec.Title, err = dec.str()
	if err != nil {
		return rec, fmt.Errorf("title: %w", err)
	}

	count, err := dec.uvarint()
	if err != nil {
		return rec, fmt.Errorf("prerequisite count: %w", err)
	}

	if count > uint64(len(dec.buf)) {
		return rec, fmt.Errorf("%w: %d prerequisites, %d bytes left", ErrIncompleteRead, count, len(dec.buf))
	}

	if count > 0 {
		rec.Prerequisites = make([]string, count)
	}

	for i := range rec.Prerequisites {
		rec.Prerequisites[i], err = dec.str()
		if err != nil {
			return rec, fmt.Errorf("prerequisite %d: %w", i, err)
		}
	}

	return rec, nil
}
