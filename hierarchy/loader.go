package hierarchy

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mlefebvre/ragtree/document"
)

// DefaultExtensions are the document types the directory loader accepts
// when the caller does not supply an allowlist.
var DefaultExtensions = []string{".txt", ".md", ".pdf", ".doc", ".docx"}

// LoadOptions tunes LoadDirectory. Zero values mean: default extensions,
// no size limit, source "local", no extra metadata.
type LoadOptions struct {
	Extensions   []string
	MaxFileBytes int64
	Source       string
	Extra        map[string]string
}

// LoadDirectory walks root and returns a Document per readable file with
// an allowed extension, each stamped with hierarchy metadata. Traversal
// failures abort with an error; per-file read failures and empty files
// are logged and skipped so one bad file never sinks the batch.
func LoadDirectory(root string, opts LoadOptions, logger *log.Logger) ([]document.Document, error) {
	if logger == nil {
		logger = log.Default()
	}

	allowed := make(map[string]bool)
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	paths, err := Walk(root)
	if err != nil {
		return nil, err
	}

	documents := make([]document.Document, 0, len(paths))
	for _, path := range paths {
		meta, err := ExtractFileMetadata(root, path)
		if err != nil {
			logger.Printf("skipping %s: %v", path, err)
			continue
		}
		if !allowed[meta.FileType] {
			continue
		}
		if opts.MaxFileBytes > 0 && meta.FileSizeBytes > opts.MaxFileBytes {
			logger.Printf("skipping large file %s (%d bytes)", path, meta.FileSizeBytes)
			continue
		}

		content, err := readFileContent(path, meta.FileType)
		if err != nil {
			logger.Printf("error reading %s: %v", path, err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			logger.Printf("empty file skipped: %s", path)
			continue
		}

		if opts.Source != "" {
			meta.Source = opts.Source
		}
		if len(opts.Extra) > 0 {
			if meta.Extra == nil {
				meta.Extra = make(map[string]string, len(opts.Extra))
			}
			for k, v := range opts.Extra {
				meta.Extra[k] = v
			}
		}

		documents = append(documents, document.Document{Content: content, Meta: meta})
	}

	logger.Printf("loaded %d documents from %s", len(documents), root)
	return documents, nil
}

func readFileContent(path, fileType string) (string, error) {
	if fileType == ".pdf" {
		return readPDF(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
