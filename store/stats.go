package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// StatsWriter appends GenerationStats to a CSV file, header first.
type StatsWriter struct {
	file          *os.File
	headerWritten bool
}

func NewStatsWriter(path string) (*StatsWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	return &StatsWriter{file: f}, nil
}

func (s *StatsWriter) Write(st GenerationStats) error {
	records := []GenerationStats{st}
	if !s.headerWritten {
		if err := gocsv.Marshal(records, s.file); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		s.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, s.file); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

func (s *StatsWriter) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadStats loads a CSV written by StatsWriter.
func ReadStats(path string) ([]GenerationStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []GenerationStats
	if err := gocsv.UnmarshalFile(f, &out); err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	return out, nil
}
