package durability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"os"
	"sync"
)

// fileMagic identifies an append-only durability log written by
// FileBridge. The header carries a magic and a format version and
// nothing else that would couple this package to any particular
// on-disk page layout.
const fileMagic = "TMVCCWAL"
const fileVersion = uint32(1)

// FileBridge persists commit envelopes as length-prefixed, CRC-checked
// gob records appended to a single file. It does not checkpoint,
// compact, or replay on open; recovery belongs to whatever storage
// engine consumes the log, not to this module.
type FileBridge struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// OpenFileBridge opens (creating if necessary) an append-only
// durability log at path.
func OpenFileBridge(path string) (*FileBridge, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open durability log %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat durability log %q: %w", path, err)
	}
	if info.Size() == 0 {
		if err := writeFileHeader(f); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &FileBridge{f: f, w: bufio.NewWriter(f)}, nil
}

func writeFileHeader(f *os.File) error {
	var hdr [12]byte
	copy(hdr[:8], fileMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], fileVersion)
	_, err := f.Write(hdr[:])
	return err
}

// Persist appends env to the log as one length-prefixed, CRC-checked
// record. Returns a non-nil error (and guarantees no partial record
// was left readable) if the write or flush fails.
func (b *FileBridge) Persist(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload, err := encodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode commit envelope: %w", err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	checksum := crc32.ChecksumIEEE(payload)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], checksum)

	if _, err := b.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write durability record length: %w", err)
	}
	if _, err := b.w.Write(payload); err != nil {
		return fmt.Errorf("write durability record: %w", err)
	}
	if _, err := b.w.Write(crcBuf[:]); err != nil {
		return fmt.Errorf("write durability record checksum: %w", err)
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("flush durability log: %w", err)
	}
	return b.f.Sync()
}

// Close flushes and closes the underlying file.
func (b *FileBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.w.Flush(); err != nil {
		return err
	}
	return b.f.Close()
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	gobEnvelope := gobEnvelope{
		ID:       [16]byte(env.ID),
		CommitTS: uint64(env.CommitTS),
	}
	for _, r := range env.Records {
		gobEnvelope.Records = append(gobEnvelope.Records, gobRecord{
			TableID:  uint32(r.RowID.Table),
			IsIntKey: r.RowID.Key.IsInt(),
			IntKey:   r.RowID.Key.Int(),
			KeyBytes: r.RowID.Key.Bytes(),
			Data:     r.Data,
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobEnvelope); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gobEnvelope/gobRecord are plain, exported-field mirrors of
// Envelope/WriteRecord that encoding/gob can serialize without
// depending on the row package's unexported Key representation.
type gobEnvelope struct {
	ID       [16]byte
	CommitTS uint64
	Records  []gobRecord
}

type gobRecord struct {
	TableID  uint32
	IsIntKey bool
	IntKey   int64
	KeyBytes []byte
	Data     []byte
}
