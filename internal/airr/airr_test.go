package airr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "sequence_id\tsequence\tproductive\tstop_codon\tsequence_alignment_aa\tfwr1_aa\tcdr1_aa\tfwr2_aa\tcdr2_aa\tfwr3_aa\tcdr3_aa\tjunction"

func table(rows ...string) string {
	return header + "\n" + strings.Join(rows, "\n") + "\n"
}

func TestParseStripsPaddedLines(t *testing.T) {
	in := "  " + header + "  \n" +
		"run_A1\tacgt\tT\tF\tQV.QL*\tQVQL\tGFT\tMGW\tIS\tYYC\tAAGRY\tx  \n" +
		"   \n" +
		"run_B2\tacgt\tF\tT\tEV\tEV\t\t\t\t\tCAR\ty\n"

	rows, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "run_A1", rows[0].SequenceID)
	assert.Equal(t, "T", rows[0].Productive)
	assert.Equal(t, "AAGRY", rows[0].CDR3AA)
	assert.Equal(t, "QVQLX", rows[0].ProteinSequence())
	assert.Equal(t, "A1", rows[0].Well())
	assert.Equal(t, "", rows[1].CDR1AA)
	assert.Equal(t, "CAR", rows[1].Get(ColCDR3AA))
}

func TestParseColumnSubset(t *testing.T) {
	rows, err := Parse(strings.NewReader(table("s_A1\tx\tT\tF\tAA\t\t\t\t\t\tCDR\tj")), ColSequenceID, ColCDR3AA)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{SequenceID: "s_A1", CDR3AA: "CDR"}, rows[0])

	_, err = Parse(strings.NewReader(table()), "v_call")
	assert.Error(t, err)
}

func TestParseShortRowsArePadded(t *testing.T) {
	rows, err := Parse(strings.NewReader(table("s_A1\tx\tF")))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "F", rows[0].Productive)
	assert.Empty(t, rows[0].CDR3AA)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = Parse(strings.NewReader("sequence_id\tproductive\nA\tT\n"))
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ColStopCodon, missing.Column)

	_, err = Parse(strings.NewReader(table("a\tb\tc\td\te\tf\tg\th\ti\tj\tk\tl\tm")))
	var malformed *MalformedRowError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Line)
}

func TestMerge(t *testing.T) {
	a := table("s_A1\tx\tT\tF\tAA\t\t\t\t\t\tC1\tj")
	b := table("s_A2\tx\tT\tF\tBB\t\t\t\t\t\tC2\tj")
	merged, err := Merge([]byte(a), nil, []byte(b))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(merged), "sequence_id"))

	rows, err := Parse(strings.NewReader(string(merged)))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C2", rows[1].CDR3AA)

	_, err = Merge([]byte(a), []byte("other\theader\n"))
	assert.Error(t, err)
}
