package analysis

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	appcfg "github.com/codeverdict/core/internal/config"
)

var (
	errNoFiles       = errors.New("archive contains no analyzable files")
	errExtractLimit  = errors.New("uncompressed archive content exceeds limit")
	errEntryTooLarge = errors.New("entry exceeds file size limit")
)

const utf8BOM = "\uFEFF"

// ExtractLimits caps uncompressed sizes. Zero disables a cap.
type ExtractLimits struct {
	MaxFileBytes  int64 // larger entries are skipped
	MaxTotalBytes int64 // exceeding it fails the extraction
}

// Extractor turns a zip snapshot into decoded text files.
type Extractor struct {
	extensions map[string]struct{}
	policy     string
	limits     ExtractLimits
}

// NewExtractor builds an extractor for the given extension allow-list
// (without leading dots), decode policy and size limits.
func NewExtractor(extensions []string, policy string, limits ExtractLimits) *Extractor {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	if policy == "" {
		policy = appcfg.DecodePolicySkip
	}
	return &Extractor{extensions: set, policy: policy, limits: limits}
}

// Allowed reports whether a path's extension is on the allow-list.
func (e *Extractor) Allowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return false
	}
	_, ok := e.extensions[ext]
	return ok
}

// Extract reads every allowed entry of archive in archive order. Entries that
// are empty after trimming are dropped.
func (e *Extractor) Extract(archive []byte) ([]SourceFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, newError(KindExtract, "open archive", err)
	}

	entries := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.Mode().IsRegular() {
			continue
		}
		entries = append(entries, f)
	}
	prefix := commonRoot(entries)

	files := make([]SourceFile, 0, len(entries))
	var total int64
	for _, f := range entries {
		name := strings.TrimPrefix(f.Name, prefix)
		if name == "" || !e.Allowed(name) {
			continue
		}
		raw, err := readEntry(f, e.limits.MaxFileBytes)
		if errors.Is(err, errEntryTooLarge) {
			continue
		}
		if err != nil {
			return nil, newError(KindExtract, "read "+name, err)
		}
		total += int64(len(raw))
		if e.limits.MaxTotalBytes > 0 && total > e.limits.MaxTotalBytes {
			return nil, newError(KindExtract, "read "+name, errExtractLimit)
		}
		text, ok, err := e.decode(raw)
		if err != nil {
			return nil, newError(KindExtract, "decode "+name, err)
		}
		if !ok {
			continue
		}
		text = strings.TrimSpace(strings.TrimPrefix(text, utf8BOM))
		if text == "" {
			continue
		}
		files = append(files, SourceFile{Path: name, Content: text})
	}
	return files, nil
}

func (e *Extractor) decode(raw []byte) (string, bool, error) {
	if utf8.Valid(raw) {
		return string(raw), true, nil
	}
	switch e.policy {
	case appcfg.DecodePolicyReplace:
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), true, nil
	case appcfg.DecodePolicyFail:
		return "", false, errors.New("content is not valid UTF-8")
	default:
		return "", false, nil
	}
}

// readEntry reads at most max bytes of f; max <= 0 reads everything. The
// declared size is checked first, the limited reader catches lying headers.
func readEntry(f *zip.File, max int64) ([]byte, error) {
	if max > 0 && f.UncompressedSize64 > uint64(max) {
		return nil, errEntryTooLarge
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if max > 0 {
		r = io.LimitReader(rc, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	if max > 0 && int64(len(data)) > max {
		return nil, errEntryTooLarge
	}
	return data, nil
}

// commonRoot returns "<dir>/" when every entry lives under the same top-level
// directory, as in GitHub's owner-repo-sha/ zipballs.
func commonRoot(entries []*zip.File) string {
	root := ""
	for i, f := range entries {
		idx := strings.Index(f.Name, "/")
		if idx <= 0 {
			return ""
		}
		top := f.Name[:idx+1]
		if i == 0 {
			root = top
			continue
		}
		if top != root {
			return ""
		}
	}
	return root
}
