package persistence

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/storage"
)

// File layout, little endian:
//
//	[magic:8 "MOONSNAP"][version:2][count:8][created unix nanos:8]
//	count x [kind:1][expireAt:8][uvarint keyLen][key][uvarint payloadLen][payload]
//	[sha256 of everything above:32]
const (
	formatVersion uint16 = 1

	headerSize   = 8 + 2 + 8 + 8
	countOffset  = 8 + 2
	checksumSize = sha256.Size
)

var magicBytes = []byte("MOONSNAP")

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrUnsupported      = errors.New("snapshot: unsupported format version")
)

// SaveInfo describes a written snapshot
type SaveInfo struct {
	Path     string
	Keys     uint64
	Size     int64
	Duration time.Duration
}

// Snapshotter writes and reads the snapshot file of one keyspace
type Snapshotter struct {
	dir    string
	name   string
	logger *zap.Logger
}

func NewSnapshotter(dir, filename string, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		dir:    dir,
		name:   filename,
		logger: logger,
	}
}

// Path returns the location of the active snapshot
func (s *Snapshotter) Path() string {
	return filepath.Join(s.dir, s.name)
}

// Save performs an atomic save operation. Each shard is encoded under its read lock and
// written after the lock is released; the result replaces the active file only once it
// is complete and synced
func (s *Snapshotter) Save(ks *storage.Keyspace) (SaveInfo, error) {
	start := time.Now()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return SaveInfo{}, dberr.Wrap(dberr.Persistence, err, "snapshot: create dir")
	}

	tmpFile := filepath.Join(s.dir, s.name+"."+ulid.Make().String()+".tmp")
	f, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return SaveInfo{}, dberr.Wrap(dberr.Persistence, err, "snapshot: create temp file")
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmpFile)
		}
	}()

	count, err := writeBody(f, ks, start)
	if err != nil {
		return SaveInfo{}, dberr.Wrap(dberr.Persistence, err, "snapshot: write")
	}
	size, err := finish(f, count)
	if err != nil {
		return SaveInfo{}, dberr.Wrap(dberr.Persistence, err, "snapshot: finish")
	}
	if err := f.Close(); err != nil {
		return SaveInfo{}, dberr.Wrap(dberr.Persistence, err, "snapshot: close")
	}
	committed = true

	if err := os.Rename(tmpFile, s.Path()); err != nil {
		_ = os.Remove(tmpFile)
		return SaveInfo{}, dberr.Wrap(dberr.Persistence, err, "snapshot: rename")
	}
	if err := syncDir(s.dir); err != nil {
		s.logger.Warn("snapshot directory sync failed", zap.Error(err))
	}

	info := SaveInfo{Path: s.Path(), Keys: count, Size: size, Duration: time.Since(start)}
	s.logger.Info("snapshot saved",
		zap.String("file", info.Path),
		zap.Uint64("keys", info.Keys),
		zap.Int64("bytes", info.Size),
		zap.Duration("duration", info.Duration),
	)
	return info, nil
}

// writeBody writes the header with a zero count followed by every entry, and returns the count
func writeBody(f *os.File, ks *storage.Keyspace, created time.Time) (uint64, error) {
	writer := bufio.NewWriterSize(f, 1024*1024)

	header := make([]byte, 0, headerSize)
	header = append(header, magicBytes...)
	header = binary.LittleEndian.AppendUint16(header, formatVersion)
	header = binary.LittleEndian.AppendUint64(header, 0)
	header = binary.LittleEndian.AppendUint64(header, uint64(created.UnixNano()))
	if _, err := writer.Write(header); err != nil {
		return 0, err
	}

	var (
		count  uint64
		buf    []byte
		encErr error
	)
	for i := range ks.ShardCount() {
		buf = buf[:0]
		ks.RangeShard(i, func(key string, v storage.Value, expireAt int64) bool {
			payload, err := storage.EncodeValue(v)
			if err != nil {
				encErr = fmt.Errorf("key %q: %w", key, err)
				return false
			}
			buf = appendRecord(buf, v.Kind(), expireAt, key, payload)
			count++
			return true
		})
		if encErr != nil {
			return 0, encErr
		}
		if _, err := writer.Write(buf); err != nil {
			return 0, err
		}
	}

	return count, writer.Flush()
}

func appendRecord(b []byte, kind storage.Kind, expireAt int64, key string, payload []byte) []byte {
	b = append(b, byte(kind))
	b = binary.LittleEndian.AppendUint64(b, uint64(expireAt))
	b = binary.AppendUvarint(b, uint64(len(key)))
	b = append(b, key...)
	b = binary.AppendUvarint(b, uint64(len(payload)))
	return append(b, payload...)
}

// finish patches the entry count, appends the checksum and syncs the file
func finish(f *os.File, count uint64) (int64, error) {
	var c [8]byte
	binary.LittleEndian.PutUint64(c[:], count)
	if _, err := f.WriteAt(c[:], countOffset); err != nil {
		return 0, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, err
	}
	if _, err := f.Write(h.Sum(nil)); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return n + checksumSize, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close() //nolint:errcheck
	return d.Sync()
}

// Load restores the active snapshot into ks. A missing file is a fresh start;
// anything unreadable is reported as a persistence error
func (s *Snapshotter) Load(ks *storage.Keyspace) (uint64, error) {
	start := time.Now()

	f, err := os.Open(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no snapshot found, starting empty", zap.String("file", s.Path()))
			return 0, nil
		}
		return 0, dberr.Wrap(dberr.Persistence, err, "snapshot: open")
	}
	defer f.Close() //nolint:errcheck

	count, err := readSnapshot(f, ks)
	if err != nil {
		return 0, dberr.Wrap(dberr.Persistence, err, "snapshot: load "+s.Path())
	}

	s.logger.Info("snapshot loaded",
		zap.String("file", s.Path()),
		zap.Uint64("keys", count),
		zap.Duration("duration", time.Since(start)),
	)
	return count, nil
}

func readSnapshot(f *os.File, ks *storage.Keyspace) (uint64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if stat.Size() < headerSize+checksumSize {
		return 0, ErrChecksumMismatch
	}

	// Verify checksum.
	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return 0, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return 0, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return 0, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return 0, err
	}
	if !bytes.Equal(header[:8], magicBytes) {
		return 0, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(header[8:10]); v == 0 || v > formatVersion {
		return 0, fmt.Errorf("%w: %d", ErrUnsupported, v)
	}
	count := binary.LittleEndian.Uint64(header[countOffset:])

	limit := uint64(dataLen)
	for i := uint64(0); i < count; i++ {
		if err := readRecord(br, ks, limit); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return 0, errors.New("snapshot: trailing data after last entry")
	}
	return count, nil
}

func readRecord(br *bufio.Reader, ks *storage.Keyspace, limit uint64) error {
	var fixed [9]byte
	if _, err := io.ReadFull(br, fixed[:]); err != nil {
		return err
	}
	kind := storage.Kind(fixed[0])
	expireAt := int64(binary.LittleEndian.Uint64(fixed[1:]))

	key, err := readBytes(br, limit)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	payload, err := readBytes(br, limit)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	v, err := storage.DecodeValue(kind, payload)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	ks.Restore(string(key), v, expireAt)
	return nil
}

func readBytes(br *bufio.Reader, limit uint64) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("length %d exceeds file size", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, err
	}
	return b, nil
}
