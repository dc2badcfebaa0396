package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services"
)

var (
	ErrNoFiles           = errors.New("no files were uploaded")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInfectedFile      = errors.New("file rejected by virus scan")
	ErrTooManyFiles      = errors.New("too many files")
)

// IntakeError carries the HTTP status a rejected request maps to.
type IntakeError struct {
	Status  int
	Message string
	Err     error
}

func (e *IntakeError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *IntakeError) Unwrap() error { return e.Err }

func clientError(msg string, err error) *IntakeError {
	return &IntakeError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

func serverError(msg string, err error) *IntakeError {
	return &IntakeError{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

type IntakeConfig struct {
	TempDir      string
	MaxFileBytes int64
	MaxFiles     int
}

// Intake admits uploaded parts and stages them on local disk.
type Intake struct {
	cfg     IntakeConfig
	scanner services.Scanner
	log     *logger.Logger
	now     func() time.Time
}

// NewIntake builds an intake. scanner may be nil.
func NewIntake(cfg IntakeConfig, scanner services.Scanner, log *logger.Logger) *Intake {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 50 << 20
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "petmarket-uploads")
	}
	return &Intake{cfg: cfg, scanner: scanner, log: log.With("component", "intake"), now: time.Now}
}

// Stage validates every part first and only then writes them to the temp dir. On any error
// nothing stays on disk.
func (in *Intake) Stage(ctx context.Context, files []*multipart.FileHeader) ([]models.StagedFile, error) {
	if len(files) == 0 {
		return nil, clientError("no files were uploaded", ErrNoFiles)
	}
	if in.cfg.MaxFiles > 0 && len(files) > in.cfg.MaxFiles {
		return nil, clientError(fmt.Sprintf("Too many files, at most %d allowed", in.cfg.MaxFiles), ErrTooManyFiles)
	}

	mimeTypes := make([]string, len(files))
	for i, fh := range files {
		mt, err := in.admit(fh)
		if err != nil {
			return nil, err
		}
		mimeTypes[i] = mt
	}

	if err := os.MkdirAll(in.cfg.TempDir, 0o750); err != nil {
		in.log.Error("Cannot create temp dir", "dir", in.cfg.TempDir, "error", err)
		return nil, serverError("Failed to stage upload", err)
	}

	staged := make([]models.StagedFile, 0, len(files))
	for i, fh := range files {
		sf, err := in.write(fh, mimeTypes[i])
		if err != nil {
			Discard(staged, in.log)
			in.log.Error("Failed to stage file", "file", fh.Filename, "error", err)
			return nil, serverError("Failed to stage upload", err)
		}
		staged = append(staged, sf)
	}

	if err := in.scan(ctx, staged); err != nil {
		Discard(staged, in.log)
		return nil, err
	}
	return staged, nil
}

func (in *Intake) admit(fh *multipart.FileHeader) (string, error) {
	mt, err := detectMIME(fh)
	if err != nil {
		in.log.Warn("Cannot read upload part", "file", fh.Filename, "error", err)
		return "", serverError("Failed to read upload", err)
	}
	if !strings.HasPrefix(mt, "image/") && !strings.HasPrefix(mt, "video/") {
		in.log.Info("Rejected upload", "file", fh.Filename, "mime", mt)
		return "", clientError("Unsupported file format", ErrUnsupportedFormat)
	}
	if fh.Size > in.cfg.MaxFileBytes {
		in.log.Info("Rejected upload", "file", fh.Filename, "size", fh.Size, "limit", in.cfg.MaxFileBytes)
		return "", clientError(fmt.Sprintf("File too large, limit is %d MB", in.cfg.MaxFileBytes>>20), ErrFileTooLarge)
	}
	return mt, nil
}

// detectMIME trusts the declared type and sniffs content only when none was given.
func detectMIME(fh *multipart.FileHeader) (string, error) {
	declared := fh.Header.Get("Content-Type")
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return strings.ToLower(mt), nil
		}
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	mt, _, _ := mime.ParseMediaType(detected.String())
	return mt, nil
}

func (in *Intake) write(fh *multipart.FileHeader, mimeType string) (models.StagedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return models.StagedFile{}, err
	}
	defer src.Close()

	path := filepath.Join(in.cfg.TempDir, in.stagedName(fh.Filename))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return models.StagedFile{}, err
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return models.StagedFile{}, err
	}

	return models.StagedFile{
		Path:         path,
		OriginalName: filepath.Base(fh.Filename),
		MimeType:     mimeType,
		SizeBytes:    n,
	}, nil
}

// stagedName is {unixMillis}-{random}{ext}.
func (in *Intake) stagedName(original string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%d-%s%s", in.now().UnixMilli(), hex.EncodeToString(b[:]), strings.ToLower(filepath.Ext(original)))
}

// scan fails open: a scanner outage admits the file.
func (in *Intake) scan(ctx context.Context, staged []models.StagedFile) error {
	if in.scanner == nil {
		return nil
	}
	for _, sf := range staged {
		res, err := in.scanner.Scan(ctx, sf.Path)
		if err != nil {
			// a cancelled request is not a scanner outage
			if ctxErr := ctx.Err(); ctxErr != nil {
				return serverError("Upload cancelled during virus scan", ctxErr)
			}
			in.log.Warn("Virus scan unavailable, admitting file", "file", sf.OriginalName, "error", err)
			continue
		}
		if res.Infected {
			in.log.Warn("Infected upload rejected", "file", sf.OriginalName, "signature", res.Signature)
			return clientError("File rejected by virus scan", ErrInfectedFile)
		}
	}
	return nil
}

// Discard removes staged files. Errors are logged only.
func Discard(staged []models.StagedFile, log *logger.Logger) {
	for _, sf := range staged {
		removeStaged(sf, log)
	}
}

func removeStaged(sf models.StagedFile, log *logger.Logger) {
	if err := os.Remove(sf.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove temp file", "path", sf.Path, "error", err)
	}
}
