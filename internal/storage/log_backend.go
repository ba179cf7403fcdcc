package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/micro-nova/ibeacon-go/internal/syncutil"
)

// Log file frame layout, little-endian:
//
//	0  magic   uint16
//	2  ns      uint16
//	4  key     uint16
//	6  length  uint16 (data bytes)
//	8  seq     uint32
//	12 crc32   uint32 over bytes 0-11 and the data
//	16 data, zero padded to 4 bytes
const (
	logMagic        = 0xBEAC
	frameHeaderSize = 16
	maxDataLen      = 0xFFFF

	// Default flash write throttle.
	defaultWritesPerSec = 4
	defaultWriteBurst   = 8
)

// LogOption configures a LogBackend.
type LogOption func(*LogBackend)

// WithWriteRate sets the write throttle. rate.Inf disables it.
func WithWriteRate(limit rate.Limit, burst int) LogOption {
	return func(b *LogBackend) {
		b.limiter = rate.NewLimiter(limit, burst)
	}
}

type logEntry struct {
	seq  uint32
	data []byte
}

// LogBackend is a log-structured Backend stored in a single append-only file.
//
// Every Write or Update appends a new frame; the frame with the highest
// sequence number for a slot is current. Init replays the file on a
// background goroutine, truncates a torn tail, and compacts the file when
// superseded frames outnumber live ones. The file is locked exclusively while
// the backend is open.
type LogBackend struct {
	mu          syncutil.Mutex
	path        string
	file        *os.File
	size        int64
	handlers    []Handler
	index       map[slot]logEntry
	open        map[uint32]int
	seq         uint32
	superseded  int
	initStarted bool
	ready       bool
	limiter     *rate.Limiter
}

// NewLogBackend returns a backend that will store its log at path.
func NewLogBackend(path string, opts ...LogOption) *LogBackend {
	b := &LogBackend{
		path:    path,
		index:   make(map[slot]logEntry),
		open:    make(map[uint32]int),
		limiter: rate.NewLimiter(rate.Limit(defaultWritesPerSec), defaultWriteBurst),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the log file path.
func (b *LogBackend) Path() string { return b.path }

func (b *LogBackend) Register(h Handler) error {
	if h == nil {
		return newError("register", CodeInvalidArg, nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
	return nil
}

func (b *LogBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initStarted {
		return newError("init", CodeBusy, nil)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return newError("init", CodeIO, err)
	}
	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return newError("init", CodeIO, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return newError("init", CodeBusy, fmt.Errorf("lock %s: %w", b.path, err))
	}
	b.file = f
	b.initStarted = true

	go b.initialize()
	return nil
}

func (b *LogBackend) initialize() {
	b.mu.Lock()
	damaged, err := b.replay()
	compacted := false
	if err == nil && (damaged || b.superseded > len(b.index)) {
		if err = b.compact(); err == nil {
			compacted = true
		}
	}
	b.ready = err == nil
	b.mu.Unlock()

	if compacted {
		b.emit(Event{ID: EventCompact})
	}
	b.emit(Event{ID: EventInit, Result: err})
}

// replay rebuilds the index from the log. A damaged frame followed by valid
// frames is skipped; damage with nothing valid after it is a torn tail and is
// truncated. damaged reports skipped frames. Called with b.mu held.
func (b *LogBackend) replay() (damaged bool, err error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return false, newError("init", CodeIO, err)
	}
	data, err := io.ReadAll(b.file)
	if err != nil {
		return false, newError("init", CodeIO, err)
	}

	off := 0
	frames := 0
	for off < len(data) {
		s, e, n, err := decodeFrame(data[off:])
		if err != nil {
			next := resync(data, off)
			if next < 0 {
				slog.Warn("storage: truncating damaged log tail", "path", b.path, "offset", off, "err", err)
				if err := b.file.Truncate(int64(off)); err != nil {
					return damaged, newError("init", CodeIO, err)
				}
				break
			}
			slog.Warn("storage: skipping damaged log frame", "path", b.path, "offset", off, "bytes", next-off, "err", err)
			damaged = true
			off = next
			continue
		}
		if cur, ok := b.index[s]; ok {
			b.superseded++
			if cur.seq > e.seq {
				e = cur
			}
		}
		b.index[s] = e
		if e.seq > b.seq {
			b.seq = e.seq
		}
		off += n
		frames++
	}
	b.size = int64(off)
	slog.Debug("storage: log replayed", "path", b.path, "frames", frames, "live", len(b.index), "superseded", b.superseded)
	return damaged, nil
}

// resync returns the offset of the next decodable frame after the damaged
// frame at off, or -1 if there is none. Frames start on 4-byte boundaries.
func resync(data []byte, off int) int {
	for p := off + 4; p+frameHeaderSize <= len(data); p += 4 {
		if binary.LittleEndian.Uint16(data[p:]) != logMagic {
			continue
		}
		if _, _, _, err := decodeFrame(data[p:]); err == nil {
			return p
		}
	}
	return -1
}

// compact rewrites the log with live records only. Called with b.mu held.
func (b *LogBackend) compact() error {
	tmpPath := b.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return newError("compact", CodeIO, err)
	}
	if err := lockFile(tmp); err != nil {
		tmp.Close()
		return newError("compact", CodeBusy, err)
	}

	var size int64
	for s, e := range b.index {
		frame := encodeFrame(s, e)
		if _, err := tmp.WriteAt(frame, size); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return newError("compact", CodeIO, err)
		}
		size += int64(len(frame))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return newError("compact", CodeIO, err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return newError("compact", CodeIO, err)
	}

	if err := syncDir(filepath.Dir(b.path)); err != nil {
		slog.Warn("storage: sync log directory failed", "path", b.path, "err", err)
	}

	slog.Info("storage: log compacted", "path", b.path, "dropped", b.superseded, "live", len(b.index))
	b.file.Close()
	b.file = tmp
	b.size = size
	b.superseded = 0
	return nil
}

func (b *LogBackend) Find(ns Namespace, key Key) (Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return Descriptor{}, newError("find", CodeNotInitialized, nil)
	}
	e, ok := b.index[slot{ns, key}]
	if !ok {
		return Descriptor{}, ErrNotFound
	}
	return Descriptor{ID: e.seq, Namespace: ns, Key: key}, nil
}

func (b *LogBackend) Open(d Descriptor) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return nil, newError("open", CodeNotInitialized, nil)
	}
	e, ok := b.index[slot{d.Namespace, d.Key}]
	if !ok || e.seq != d.ID {
		return nil, newError("open", CodeStaleDesc, nil)
	}
	b.open[d.ID]++
	return append([]byte(nil), e.data...), nil
}

func (b *LogBackend) Close(d Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return newError("close", CodeNotInitialized, nil)
	}
	if b.open[d.ID] == 0 {
		return newError("close", CodeStaleDesc, nil)
	}
	b.open[d.ID]--
	if b.open[d.ID] == 0 {
		delete(b.open, d.ID)
	}
	return nil
}

func (b *LogBackend) Write(ns Namespace, key Key, data []byte) (Descriptor, error) {
	d, err := b.appendRecord("write", slot{ns, key}, nil, data)
	if err != nil {
		return Descriptor{}, err
	}
	b.emit(Event{ID: EventWrite, Descriptor: d})
	return d, nil
}

func (b *LogBackend) Update(d Descriptor, data []byte) (Descriptor, error) {
	nd, err := b.appendRecord("update", slot{d.Namespace, d.Key}, &d, data)
	if err != nil {
		return Descriptor{}, err
	}
	b.emit(Event{ID: EventUpdate, Descriptor: nd})
	return nd, nil
}

func (b *LogBackend) appendRecord(op string, s slot, prev *Descriptor, data []byte) (Descriptor, error) {
	if len(data) > maxDataLen {
		return Descriptor{}, newError(op, CodeInvalidArg, fmt.Errorf("record of %d bytes exceeds %d", len(data), maxDataLen))
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return Descriptor{}, newError(op, CodeBusy, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return Descriptor{}, newError(op, CodeNotInitialized, nil)
	}
	cur, exists := b.index[s]
	if prev != nil && (!exists || cur.seq != prev.ID) {
		return Descriptor{}, newError(op, CodeStaleDesc, nil)
	}

	e := logEntry{seq: b.seq + 1, data: append([]byte(nil), data...)}
	frame := encodeFrame(s, e)
	if _, err := b.file.WriteAt(frame, b.size); err != nil {
		_ = b.file.Truncate(b.size)
		return Descriptor{}, newError(op, CodeIO, err)
	}
	if err := b.file.Sync(); err != nil {
		return Descriptor{}, newError(op, CodeIO, err)
	}

	b.size += int64(len(frame))
	b.seq = e.seq
	b.index[s] = e
	if exists {
		b.superseded++
	}
	return Descriptor{ID: e.seq, Namespace: s.ns, Key: s.key}, nil
}

// Shutdown closes the log file and releases its lock.
func (b *LogBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

func (b *LogBackend) emit(ev Event) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// syncDir flushes a directory entry change such as a rename.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

var errBadFrame = errors.New("bad frame")

func encodeFrame(s slot, e logEntry) []byte {
	padded := (len(e.data) + 3) &^ 3
	frame := make([]byte, frameHeaderSize+padded)
	binary.LittleEndian.PutUint16(frame[0:], logMagic)
	binary.LittleEndian.PutUint16(frame[2:], uint16(s.ns))
	binary.LittleEndian.PutUint16(frame[4:], uint16(s.key))
	binary.LittleEndian.PutUint16(frame[6:], uint16(len(e.data)))
	binary.LittleEndian.PutUint32(frame[8:], e.seq)
	copy(frame[frameHeaderSize:], e.data)
	binary.LittleEndian.PutUint32(frame[12:], frameChecksum(frame[:12], e.data))
	return frame
}

func decodeFrame(buf []byte) (slot, logEntry, int, error) {
	if len(buf) < frameHeaderSize {
		return slot{}, logEntry{}, 0, fmt.Errorf("%w: short header (%d bytes)", errBadFrame, len(buf))
	}
	if binary.LittleEndian.Uint16(buf[0:]) != logMagic {
		return slot{}, logEntry{}, 0, fmt.Errorf("%w: bad magic", errBadFrame)
	}
	length := int(binary.LittleEndian.Uint16(buf[6:]))
	padded := (length + 3) &^ 3
	if len(buf) < frameHeaderSize+padded {
		return slot{}, logEntry{}, 0, fmt.Errorf("%w: short data", errBadFrame)
	}
	data := buf[frameHeaderSize : frameHeaderSize+length]
	if binary.LittleEndian.Uint32(buf[12:]) != frameChecksum(buf[:12], data) {
		return slot{}, logEntry{}, 0, fmt.Errorf("%w: checksum mismatch", errBadFrame)
	}
	s := slot{
		ns:  Namespace(binary.LittleEndian.Uint16(buf[2:])),
		key: Key(binary.LittleEndian.Uint16(buf[4:])),
	}
	e := logEntry{
		seq:  binary.LittleEndian.Uint32(buf[8:]),
		data: append([]byte(nil), data...),
	}
	return s, e, frameHeaderSize + padded, nil
}

func frameChecksum(header, data []byte) uint32 {
	crc := crc32.ChecksumIEEE(header)
	return crc32.Update(crc, crc32.IEEETable, data)
}

// Ensure LogBackend implements Backend
var _ Backend = (*LogBackend)(nil)
