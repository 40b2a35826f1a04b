package sequences

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const startCodon = "ATG"

// Trim normalises the content of a single-sequence file and returns the
// nucleotides following the first start codon. Content without a start
// codon yields an empty string.
func Trim(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", &MalformedSequenceError{Reason: "content is not valid UTF-8 text"}
	}
	text := string(content)

	if strings.HasPrefix(text, ">") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = ""
		}
	}
	if strings.Contains(text, ">") {
		return "", &MultiSequenceFileError{}
	}

	seq := strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text))

	for _, r := range seq {
		switch r {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return "", &InvalidNucleotideError{Char: r}
		}
	}

	i := strings.Index(seq, startCodon)
	if i < 0 {
		return "", nil
	}
	return seq[i+len(startCodon):], nil
}
