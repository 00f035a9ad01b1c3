// Package ingest accepts uploaded audio and writes it to a per-run scratch
// file. Nothing is decoded here: only size and extension are checked.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const stage = "ingest"

// DefaultMaxBytes is the upload cap used when none is configured (100 MB)
const DefaultMaxBytes int64 = 100 * 1024 * 1024

var (
	ErrTooLarge        = errors.New("file size too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyUpload     = errors.New("empty upload")
)

// Allow-lists per flow
var (
	TranscriptionFormats = []string{"wav", "mp3", "ogg"}
	ReferenceFormats     = []string{"wav", "mp3"}
)

// Upload is an in-memory or streamed audio blob as received from a front end
type Upload struct {
	FileName string
	Size     int64 // declared size; -1 when unknown
	Body     io.Reader
}

// Format returns the lower-cased extension without the dot
func (u Upload) Format() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(u.FileName)), ".")
}

// ScratchFile is an upload persisted for one run. The caller must Remove it.
type ScratchFile struct {
	Path   string
	Format string
	Size   int64
}

// Remove deletes the scratch file; a missing file is not an error
func (f *ScratchFile) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove scratch file: %w", err)
	}
	return nil
}

// ReadAll returns the scratch file contents
func (f *ScratchFile) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scratch file: %w", err)
	}
	return data, nil
}

type Ingestor struct {
	dir      string
	maxBytes int64
	formats  map[string]struct{}
}

// NewIngestor creates an ingestor writing into dir. maxBytes <= 0 means
// DefaultMaxBytes.
func NewIngestor(dir string, maxBytes int64, formats []string) *Ingestor {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	allowed := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		allowed[strings.ToLower(f)] = struct{}{}
	}
	return &Ingestor{dir: dir, maxBytes: maxBytes, formats: allowed}
}

// MaxBytes returns the configured upload cap
func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

// Check validates the declared size and the extension without touching disk
func (i *Ingestor) Check(u Upload) error {
	if u.Size > i.maxBytes {
		return model.ValidationError(stage, i.tooLarge(u.Size))
	}
	if u.Size == 0 {
		return model.ValidationError(stage, ErrEmptyUpload)
	}
	if _, ok := i.formats[u.Format()]; !ok {
		return model.ValidationError(stage, fmt.Errorf("%w: %q (allowed: %s)",
			ErrUnsupportedType, u.FileName, strings.Join(i.allowed(), ", ")))
	}
	return nil
}

// Accept validates the upload and writes its bytes verbatim to a scratch
// file named after runID. Oversized uploads never reach the disk beyond the
// cap: the copy is bounded and the partial file removed.
func (i *Ingestor) Accept(runID string, u Upload) (*ScratchFile, error) {
	if err := i.Check(u); err != nil {
		return nil, err
	}

	file, err := os.CreateTemp(i.dir, fmt.Sprintf("%s-*.%s", runID, u.Format()))
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	scratch := &ScratchFile{Path: file.Name(), Format: u.Format()}

	n, err := io.Copy(file, io.LimitReader(u.Body, i.maxBytes+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		scratch.Remove()
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if n > i.maxBytes {
		scratch.Remove()
		return nil, model.ValidationError(stage, i.tooLarge(n))
	}
	if n == 0 {
		scratch.Remove()
		return nil, model.ValidationError(stage, ErrEmptyUpload)
	}
	scratch.Size = n

	logger.Debug("Upload written to scratch file",
		zap.String("run_id", runID),
		zap.String("path", scratch.Path),
		zap.Int64("size", n))

	return scratch, nil
}

func (i *Ingestor) tooLarge(size int64) error {
	return fmt.Errorf("%w: %s exceeds the %s limit",
		ErrTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(i.maxBytes)))
}

func (i *Ingestor) allowed() []string {
	out := make([]string, 0, len(i.formats))
	for f := range i.formats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
