package pipeline

import (
	"errors"
	"fmt"
)

// ErrStructural marks whole-file problems. No rows are processed when a run
// returns an error wrapping it.
var ErrStructural = errors.New("import rejected")

var (
	ErrEmptyFile       = fmt.Errorf("%w: file is empty", ErrStructural)
	ErrUndecodable     = fmt.Errorf("%w: file is not readable text", ErrStructural)
	ErrUnsupportedFile = fmt.Errorf("%w: unsupported file type", ErrStructural)
	ErrFileTooLarge    = fmt.Errorf("%w: file too large", ErrStructural)
	ErrInvalidArchive  = fmt.Errorf("%w: invalid archive", ErrStructural)
	ErrMissingMapping  = fmt.Errorf("%w: column mapping incomplete", ErrStructural)
	ErrInvalidOptions  = fmt.Errorf("%w: invalid parsing options", ErrStructural)
	ErrMissingSettings = fmt.Errorf("%w: organization accounting settings not configured", ErrStructural)
	ErrInvalidSettings = fmt.Errorf("%w: organization accounting settings invalid", ErrStructural)
)
