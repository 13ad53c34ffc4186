package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
)

// DefaultDocumentTypes are the attachment types accepted for document uploads.
var DefaultDocumentTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
}

// ArchiveFile is one attachment packaged in an import archive. Data is nil
// when the entry exceeds the per-document cap and was not read.
type ArchiveFile struct {
	Name string
	Size int64
	Data []byte
}

// Archive is an unpacked import archive: one delimited file plus attachments
// keyed by normalized path.
type Archive struct {
	DataName string
	Data     []byte
	Files    map[string]ArchiveFile
}

// OpenArchive unpacks a zip archive. It must hold exactly one delimited-text
// file; every other regular file is an attachment. Directory entries, macOS
// resource forks and dotfiles are ignored.
func OpenArchive(data []byte, maxDataBytes, maxDocumentBytes int64) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	archive := &Archive{Files: make(map[string]ArchiveFile)}
	var dataFiles []string
	for _, f := range zr.File {
		name := NormalizeDocumentPath(f.Name)
		if f.FileInfo().IsDir() || name == "" || ignoredArchiveEntry(name) {
			continue
		}

		if isDelimitedName(name) {
			dataFiles = append(dataFiles, name)
			if len(dataFiles) > 1 {
				continue
			}
			if f.UncompressedSize64 > uint64(maxDataBytes) {
				return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, maxDataBytes)
			}
			b, err := readZipEntry(f, maxDataBytes)
			if err != nil {
				return nil, err
			}
			archive.DataName, archive.Data = name, b
			continue
		}

		af := ArchiveFile{Name: f.Name, Size: int64(f.UncompressedSize64)}
		if f.UncompressedSize64 <= uint64(maxDocumentBytes) {
			b, err := readZipEntry(f, maxDocumentBytes)
			if err != nil {
				return nil, err
			}
			af.Data, af.Size = b, int64(len(b))
		}
		archive.Files[name] = af
	}

	switch len(dataFiles) {
	case 0:
		return nil, fmt.Errorf("%w: no .csv file in archive", ErrInvalidArchive)
	case 1:
		return archive, nil
	default:
		sort.Strings(dataFiles)
		return nil, fmt.Errorf("%w: archive must contain exactly one .csv file, found %s",
			ErrInvalidArchive, strings.Join(dataFiles, ", "))
	}
}

func readZipEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidArchive, f.Name, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, f.Name, limit)
	}
	return b, nil
}

func ignoredArchiveEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), ".")
}

// NormalizeDocumentPath makes archive entry names and row references comparable:
// backslashes become slashes, leading "./" and "/" are dropped and the path is cleaned.
func NormalizeDocumentPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

// DocumentPolicy limits attachments.
type DocumentPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (p DocumentPolicy) allows(mimeType string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

// Associate checks the row's document reference against the archive. A bad
// attachment invalidates the whole row. Rows without a reference pass.
func Associate(row *NormalizedImportRow, files map[string]ArchiveFile, policy DocumentPolicy) {
	if row.DocumentPath == "" {
		return
	}

	f, ok := files[NormalizeDocumentPath(row.DocumentPath)]
	switch {
	case !ok:
		row.invalidate(fmt.Sprintf("document %q not found in archive", row.DocumentPath))
	case f.Size > policy.MaxBytes || f.Data == nil:
		row.invalidate(fmt.Sprintf("document %q is %d bytes, the limit is %d", row.DocumentPath, f.Size, policy.MaxBytes))
	default:
		if mt := DetectMimeType(f.Data); !policy.allows(mt) {
			row.invalidate(fmt.Sprintf("document %q has unsupported type %s", row.DocumentPath, mt))
		}
	}
}

// DetectMimeType sniffs content without its parameters.
func DetectMimeType(data []byte) string {
	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}
