package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// RawRow is one record of the source file. Index is the 0-based line the
// record starts on. Err carries a row-level structural problem.
type RawRow struct {
	Index int
	Cells []string
	Err   string
}

// ParsedFile is the grid read from a delimited file.
type ParsedFile struct {
	Header []string
	Rows   []RawRow
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

var delimiterNames = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
	`\t`:        '\t',
	"pipe":      '|',
}

// delimiterRune maps a configured delimiter to the rune the reader splits on.
func delimiterRune(s string) (rune, error) {
	if s == "" {
		return ',', nil
	}
	if r, ok := delimiterNames[strings.ToLower(s)]; ok {
		return r, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("%w: unsupported delimiter %q", ErrInvalidOptions, s)
	}
	return r, nil
}

// ParseFile reads delimited text into rows. Only undecodable or empty input
// fails the whole file; ragged rows are reported on the row.
func ParseFile(data []byte, opts domain.ParsingOptions) (*ParsedFile, error) {
	delim, err := delimiterRune(opts.Delimiter)
	if err != nil {
		return nil, err
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = delim != '\t'

	parsed := &ParsedFile{}
	needHeader := opts.HasHeader
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				parsed.Rows = append(parsed.Rows, RawRow{
					Index: perr.StartLine - 1,
					Err:   fmt.Sprintf("malformed record: %v", perr.Err),
				})
				continue
			}
			return nil, fmt.Errorf("ParseFile: reading records: %w", err)
		}
		if isBlankRecord(record) {
			continue
		}

		line, _ := r.FieldPos(0)
		if needHeader {
			parsed.Header = trimCells(record)
			needHeader = false
			continue
		}

		row := RawRow{Index: line - 1, Cells: record}
		if parsed.Header != nil {
			cells := trimTrailingEmpty(record, len(parsed.Header))
			if len(cells) != len(parsed.Header) {
				row.Err = fmt.Sprintf("row has %d cells, header has %d", len(cells), len(parsed.Header))
			}
		}
		parsed.Rows = append(parsed.Rows, row)
	}

	// A header without data rows is as empty as no bytes at all.
	if len(parsed.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return parsed, nil
}

// decodeText strips byte-order marks and returns the file as UTF-8.
// Text that is not valid UTF-8 is read as Windows-1252.
func decodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf16LEBOM) || bytes.HasPrefix(data, utf16BEBOM) {
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data),
			unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyFile
	}
	if looksBinary(data) {
		return "", ErrUndecodable
	}
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return string(decoded), nil
}

// looksBinary sniffs the leading bytes the way uploads are checked elsewhere.
func looksBinary(data []byte) bool {
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !strings.HasPrefix(http.DetectContentType(sniff), "text/")
}

func isBlankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimCells(record []string) []string {
	out := make([]string, len(record))
	for i, c := range record {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// trimTrailingEmpty drops empty cells past width, which spreadsheet exports often append.
func trimTrailingEmpty(record []string, width int) []string {
	n := len(record)
	for n > width && strings.TrimSpace(record[n-1]) == "" {
		n--
	}
	return record[:n]
}
