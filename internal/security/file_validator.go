package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxSourceSize bounds a watched source file
const DefaultMaxSourceSize = 4 * 1024 * 1024

// ErrBinaryFile is returned for files that do not look like text
var ErrBinaryFile = errors.New("file appears to be binary")

// FileValidator checks a source file before it is read and diffed.
// Script files are small text; anything else is refused so a stray
// binary or a huge log never lands in the diff baseline.
type FileValidator struct {
	MaxSize    int64 // larger files are rejected; 0 means DefaultMaxSourceSize
	HeaderSize int64 // bytes inspected for binary content
}

func NewFileValidator(maxSize int64) *FileValidator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSourceSize
	}
	return &FileValidator{
		MaxSize:    maxSize,
		HeaderSize: 8 * 1024,
	}
}

// Validate reads only the header of path and reports why it cannot be watched
func (fv *FileValidator) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > fv.MaxSize {
		return fmt.Errorf("%s is %d bytes, above the %d byte limit", path, info.Size(), fv.MaxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, fv.HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("failed to read header: %w", err)
	}
	return fv.ValidateContent(header[:n])
}

// ValidateContent applies the content checks to data already in memory
func (fv *FileValidator) ValidateContent(data []byte) error {
	if signature := knownSignature(data); signature != "" {
		return fmt.Errorf("%w (%s signature)", ErrBinaryFile, signature)
	}
	if isBinaryData(data) {
		return ErrBinaryFile
	}
	return nil
}

// file signatures (magic bytes) of formats that get saved under a script name by mistake
var signatures = []struct {
	name  string
	magic []byte
}{
	{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"gif", []byte("GIF8")},
	{"pdf", []byte("%PDF-")},
	{"zip", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"gzip", []byte{0x1F, 0x8B}},
	{"elf", []byte{0x7F, 'E', 'L', 'F'}},
	{"pe", []byte{0x4D, 0x5A}},
}

func knownSignature(header []byte) string {
	for _, s := range signatures {
		if bytes.HasPrefix(header, s.magic) {
			return s.name
		}
	}
	return ""
}

// isBinaryData checks if data contains binary content
func isBinaryData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}

	// Control characters (0-31 except tab, LF, CR) and DEL
	nonPrintable := 0
	for _, b := range data {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(data)) > 0.3
}
