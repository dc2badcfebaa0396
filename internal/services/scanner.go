package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	clamd "github.com/dutchcoders/go-clamd"

	"github.com/petmarket/media-service/internal/logger"
)

// ScanResult is the verdict for one file.
type ScanResult struct {
	Infected  bool
	Signature string
}

// Scanner inspects a staged file before it leaves the host.
type Scanner interface {
	Scan(ctx context.Context, path string) (ScanResult, error)
}

type ClamAVScanner struct {
	client *clamd.Clamd
	log    *logger.Logger
}

// NewClamAVScanner takes a clamd address such as tcp://clamav:3310 or unix:///run/clamd.sock.
func NewClamAVScanner(address string, log *logger.Logger) *ClamAVScanner {
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}
	return &ClamAVScanner{
		client: clamd.NewClamd(address),
		log:    log.With("service", "ClamAVScanner"),
	}
}

func (s *ClamAVScanner) Ping() error {
	return s.client.Ping()
}

func (s *ClamAVScanner) Scan(ctx context.Context, path string) (ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ScanResult{}, fmt.Errorf("open for scan: %w", err)
	}
	defer f.Close()

	// clamd drops the connection once abort is closed
	abort := make(chan bool)
	stop := context.AfterFunc(ctx, func() { close(abort) })
	defer func() {
		if stop() {
			close(abort)
		}
	}()

	response, err := s.client.ScanStream(f, abort)
	if err != nil {
		return ScanResult{}, fmt.Errorf("clamd scan: %w", err)
	}

	result := ScanResult{}
	var scanErr error
	for res := range response {
		switch res.Status {
		case clamd.RES_FOUND:
			result.Infected = true
			result.Signature = res.Description
		case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
			scanErr = fmt.Errorf("clamd: %s", res.Description)
		}
	}
	if result.Infected {
		s.log.Warn("Virus detected", "path", path, "signature", result.Signature)
		return result, nil
	}
	if scanErr != nil {
		return ScanResult{}, scanErr
	}
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}
	return result, nil
}
