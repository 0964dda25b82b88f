// Package document reads user-supplied documents for direct-mode queries.
// Text is returned verbatim; nothing is chunked, trimmed or filtered.
package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxBytes caps how much of a file is read.
const MaxBytes = 10 << 20

// Document is a loaded file.
type Document struct {
	Name string
	Text string
}

// Supported reports whether path has an extension Load understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

// Load reads a .txt, .md or .pdf file.
func Load(path string) (Document, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		text, err := readText(path)
		if err != nil {
			return Document{}, err
		}
		return Document{Name: name, Text: text}, nil
	case ".pdf":
		text, err := readPDF(path)
		if err != nil {
			return Document{}, err
		}
		return Document{Name: name, Text: text}, nil
	default:
		return Document{}, fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
}

// LoadReader stores r under a temporary file named like name and loads it.
// The pdf library only reads from paths.
func LoadReader(name string, r io.Reader) (Document, error) {
	if !Supported(name) {
		return Document{}, fmt.Errorf("unsupported document type %q", filepath.Ext(name))
	}
	tmp, err := os.CreateTemp("", "groundrag-upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return Document{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, io.LimitReader(r, MaxBytes+1)); err != nil {
		return Document{}, fmt.Errorf("save upload: %w", err)
	}
	doc, err := Load(tmp.Name())
	if err != nil {
		return Document{}, err
	}
	doc.Name = filepath.Base(name)
	return doc, nil
}

func readText(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxBytes {
		return "", fmt.Errorf("%s is %d bytes, limit is %d", filepath.Base(path), info.Size(), MaxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(b, MaxBytes)); err != nil {
		return "", fmt.Errorf("read pdf buffer: %w", err)
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", fmt.Errorf("no text extracted from %s", filepath.Base(path))
	}
	return buf.String(), nil
}
