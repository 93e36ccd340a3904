package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Martaccvlc/ImageResizingAPI/internal/fileops"
)

// Storage provides a local filesystem backend with two managed roots:
// an input directory for downloaded source images and an output directory
// for resized derivatives.
type Storage struct {
	inputDir  string
	outputDir string
}

// NewStorage creates a Storage instance and makes sure both roots exist.
func NewStorage(inputDir, outputDir string) (*Storage, error) {
	if err := fileops.EnsureDir(inputDir); err != nil {
		return nil, err
	}
	if err := fileops.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	return &Storage{inputDir: inputDir, outputDir: outputDir}, nil
}

// OutputRoot returns the derivative root directory.
func (s *Storage) OutputRoot() string {
	return s.outputDir
}

// SaveSource stores a downloaded source image under the input directory
// with the provided filename and returns its absolute path.
func (s *Storage) SaveSource(filename string, src io.Reader) (string, error) {
	dstPath := filepath.Join(s.inputDir, filename)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to save file %s: %w", dstPath, err)
	}

	abs, err := filepath.Abs(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", dstPath, err)
	}

	return abs, nil
}

// SaveDerivative writes a resized variant under the output root at the
// given relative path, creating intermediate directories.
func (s *Storage) SaveDerivative(relPath string, src io.Reader) (string, error) {
	dstPath := filepath.Join(s.outputDir, relPath)

	if err := fileops.EnsureDir(filepath.Dir(dstPath)); err != nil {
		return "", err
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to save file %s: %w", dstPath, err)
	}

	return dstPath, nil
}

// DerivativeExists reports whether a derivative already exists at the
// given relative path under the output root.
func (s *Storage) DerivativeExists(relPath string) bool {
	_, err := os.Stat(filepath.Join(s.outputDir, relPath))
	return err == nil
}

// SourceExists reports whether the source file at path is present on disk.
func (s *Storage) SourceExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
