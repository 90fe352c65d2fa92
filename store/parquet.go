package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const (
	generationSchema = "generation_row_v1"
	turnSchema       = "turn_row_v1"
)

// WriteGenerationsParquet replaces outPath with rows. The file is written to
// a temp path first and renamed, so readers never see a partial file.
func WriteGenerationsParquet(outPath string, rows []GenerationRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", generationSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadGenerationsParquet loads a file written by WriteGenerationsParquet.
func ReadGenerationsParquet(path string) ([]GenerationRow, error) {
	rows, err := parquet.ReadFile[GenerationRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}

// ReadTurnsParquet loads a file finalised by TurnWriter.
func ReadTurnsParquet(path string) ([]TurnRow, error) {
	rows, err := parquet.ReadFile[TurnRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}

// TurnWriter streams TurnRows into tmp/<name> and moves the file into place
// on Finalize.
type TurnWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TurnRow]
	rows   int
}

func NewTurnWriter(outPath string) (*TurnWriter, error) {
	dir := filepath.Dir(outPath)
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	tmpPath := filepath.Join(tmpDir, filepath.Base(outPath))

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TurnRow](f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", turnSchema)

	return &TurnWriter{tmpPath: tmpPath, outPath: outPath, file: f, writer: w}, nil
}

func (t *TurnWriter) Rows() int { return t.rows }

func (t *TurnWriter) Write(rows []TurnRow) error {
	if t.writer == nil {
		return fmt.Errorf("turn writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := t.writer.Write(rows); err != nil {
		return err
	}
	t.rows += len(rows)
	return nil
}

// Finalize closes the writer and renames the file into place. With no rows
// the temp file is removed and the returned path is empty.
func (t *TurnWriter) Finalize() (string, int, error) {
	if t.writer == nil && t.file == nil {
		return "", 0, nil
	}

	var closeErr, fileErr error
	if t.writer != nil {
		closeErr = t.writer.Close()
		t.writer = nil
	}
	if t.file != nil {
		_ = t.file.Sync()
		fileErr = t.file.Close()
		t.file = nil
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if t.rows == 0 {
		_ = os.Remove(t.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(t.tmpPath, t.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return t.outPath, t.rows, nil
}
