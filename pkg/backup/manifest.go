package backup

import (
	"bufio"
	"fmt"
	"os"
)

// SerializeFileNames writes one file name per line to destPath. Names are
// written exactly as supplied; callers wanting determinism sort first.
func SerializeFileNames(fileNames []string, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create manifest %s: %w", destPath, err)
	}

	w := bufio.NewWriter(f)
	for _, name := range fileNames {
		if _, err := fmt.Fprintln(w, name); err != nil {
			f.Close()
			return fmt.Errorf("failed to write manifest %s: %w", destPath, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write manifest %s: %w", destPath, err)
	}
	return f.Close()
}

// DeserializeFileNames reads a newline-delimited manifest back into a
// slice of file names, preserving file order.
func DeserializeFileNames(manifestPath string) ([]string, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", manifestPath, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", manifestPath, err)
	}
	return names, nil
}
