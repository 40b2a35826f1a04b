package sequences

import "fmt"

// MultiSequenceFileError reports a file holding more than one FASTA record.
type MultiSequenceFileError struct{}

func (e *MultiSequenceFileError) Error() string {
	return "multiple sequences per file are not supported"
}

// MalformedSequenceError reports content that is not a plain nucleotide text.
type MalformedSequenceError struct {
	Reason string
}

func (e *MalformedSequenceError) Error() string {
	return "malformed sequence: " + e.Reason
}

// InvalidNucleotideError reports characters outside A, C, G, T and N.
type InvalidNucleotideError struct {
	Char rune
}

func (e *InvalidNucleotideError) Error() string {
	return fmt.Sprintf("invalid nucleotide %q (expected A, C, G, T or N)", e.Char)
}

// FileError ties a parse failure to the file that caused it.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
