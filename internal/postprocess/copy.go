package postprocess

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// copyFiles places the resolved source into the destination directory. A
// directory source has every non-hidden top-level entry copied recursively; a
// single file is renamed from the book's template with collision counters.
// Files are copied, never moved, to preserve seeding.
func copyFiles(source, destination string, book Book) error {
	if source == "" {
		return fmt.Errorf("source path is blank: check download client configuration and ensure the download completed successfully")
	}

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("source path not found: %s, verify path remapping settings (download_remote_path/download_local_path) match your container mount points", source)
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", destination, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(source)
		if err != nil {
			return fmt.Errorf("read source directory %s: %w", source, err)
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			src := filepath.Join(source, entry.Name())
			dst := filepath.Join(destination, entry.Name())
			if err := copyRecursive(src, dst); err != nil {
				return err
			}
		}
		return nil
	}

	filename := BuildFilename(book, filepath.Ext(source))
	destFile := uniquePath(filepath.Join(destination, filename))
	return copyFile(source, destFile)
}

// uniquePath disambiguates an existing destination by appending " (n)" before
// the extension, starting at 2.
func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for counter := 2; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, counter, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

func copyRecursive(source, destination string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}

	if !info.IsDir() {
		return copyFile(source, destination)
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", destination, err)
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", source, err)
	}
	for _, entry := range entries {
		src := filepath.Join(source, entry.Name())
		dst := filepath.Join(destination, entry.Name())
		if err := copyRecursive(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("create %s: %w", destination, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", source, destination, err)
	}
	return out.Close()
}
