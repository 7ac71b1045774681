package table

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
)

func salesTable() *Table {
	return New("sales.csv", []string{"company", "amount", "A-2"}, [][]string{
		{"A", "100", "2024-01-05"},
		{"B", "300", "2024-02-10"},
		{"A", "50", "2023-12-31"},
		{"", "70", "2024-01-20"},
	})
}

func TestNewInfersNumericColumns(t *testing.T) {
	tb := salesTable()
	require.Equal(t, 4, tb.Len())
	assert.Equal(t, []string{"company", "amount", "A-2"}, tb.Columns())
	assert.Equal(t, []string{"amount"}, tb.NumericColumns())
	assert.Equal(t, 300.0, tb.At(1, "amount").Num)
	assert.True(t, tb.At(3, "company").IsNull())
}

func TestNewDedupesHeader(t *testing.T) {
	tb := New("x", []string{"\ufeffa", "a", ""}, [][]string{{"1", "2", "3"}})
	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2"}, tb.Columns())
}

func TestParseFallsBackToCP949(t *testing.T) {
	src := "거래처,합계\n한국상사,\"1,200\"\n"
	enc, err := korean.EUCKR.NewEncoder().Bytes([]byte(src))
	require.NoError(t, err)

	tb, err := Parse("거래처 데이터.csv", enc, LoadOptions{Normalize: true})
	require.NoError(t, err)
	assert.Equal(t, string(CP949), tb.Encoding)
	assert.Equal(t, "한국상사", tb.At(0, "거래처").Str)
	assert.Equal(t, 1200.0, tb.At(0, "합계").Num)
}

func TestParseDetectsBOM(t *testing.T) {
	b := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a;b\n1;2\n")...)
	tb, err := Parse("x.csv", b, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, string(UTF8BOM), tb.Encoding)
	assert.Equal(t, []string{"a", "b"}, tb.Columns())
}

func TestParseRejectsUndecodable(t *testing.T) {
	// 0xFF 0xFF is not valid UTF-8 nor CP949.
	_, err := Parse("bad.csv", []byte{0xFF, 0xFF, '\n'}, LoadOptions{Encodings: []Encoding{UTF8, CP949}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndecodable))
}

func TestParseLatin1AlwaysDecodes(t *testing.T) {
	tb, err := Parse("bad.csv", []byte{'h', '\n', 0xFF, 0xFF, '\n'}, LoadOptions{Encodings: UploadEncodings})
	require.NoError(t, err)
	assert.Equal(t, string(Latin1), tb.Encoding)
}

func TestParseEmptyFile(t *testing.T) {
	_, err := Parse("empty.csv", nil, LoadOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestNormalizeNumericKeepsDatesAndText(t *testing.T) {
	tb := New("s", []string{"매출일", "합계", "마진율", "세부내용"}, [][]string{
		{"2024-01-02", "1,000", "12%", "방문 상담"},
		{"2024-01-03", "-", "8 %", "전화"},
		{"2024-01-04", "x", "nan", "메일"},
	})
	out := NormalizeNumeric(tb)
	c, _ := out.Column("합계")
	assert.True(t, c.Numeric)
	assert.Equal(t, 1000.0, c.Values[0].Num)
	assert.True(t, c.Values[1].IsNull())
	assert.True(t, c.Values[2].IsNull())

	m, _ := out.Column("마진율")
	assert.True(t, m.Numeric)
	assert.Equal(t, 8.0, m.Values[1].Num)

	d, _ := out.Column("매출일")
	assert.False(t, d.Numeric)
	s, _ := out.Column("세부내용")
	assert.False(t, s.Numeric)
}

func TestGroupAggregateSortsKeysAndDropsNulls(t *testing.T) {
	g, ok := salesTable().GroupAggregate("company", []string{"amount"}, Sum)
	require.True(t, ok)
	require.Equal(t, 2, g.Len())
	assert.Equal(t, "A", g.At(0, "company").Str)
	assert.Equal(t, 150.0, g.At(0, "amount").Num)
	assert.Equal(t, 300.0, g.At(1, "amount").Num)

	_, ok = salesTable().GroupAggregate("missing", nil, Sum)
	assert.False(t, ok)
}

func TestGroupSize(t *testing.T) {
	g, ok := salesTable().GroupSize("company", "건수")
	require.True(t, ok)
	assert.Equal(t, []string{"company", "건수"}, g.Columns())
	assert.Equal(t, 2.0, g.At(0, "건수").Num)
}

func TestAggApply(t *testing.T) {
	vals := []Value{Number(2), Null, Number(4)}
	assert.Equal(t, 6.0, Sum.Apply(vals).Num)
	assert.Equal(t, 3.0, Mean.Apply(vals).Num)
	assert.Equal(t, 2.0, Count.Apply(vals).Num)
	assert.Equal(t, 4.0, Max.Apply(vals).Num)
	assert.Equal(t, 2.0, Min.Apply(vals).Num)
	assert.True(t, Mean.Apply([]Value{Null}).IsNull())
	assert.Equal(t, 0.0, Sum.Apply(nil).Num)
}

func TestSortByNullsLastAndStable(t *testing.T) {
	tb := New("x", []string{"k", "v"}, [][]string{{"a", "1"}, {"b", ""}, {"c", "3"}, {"d", "1"}})
	desc := tb.SortBy("v", true)
	assert.Equal(t, []string{"c", "a", "d", "b"}, desc.Unique("k"))
	asc := tb.SortBy("v", false)
	assert.Equal(t, []string{"a", "d", "c", "b"}, asc.Unique("k"))
	assert.Equal(t, 2, desc.RowID(0))
}

func TestFilterPreservesRowIDs(t *testing.T) {
	tb := salesTable()
	f := tb.Filter(func(i int) bool { return tb.At(i, "company").Str == "A" })
	require.Equal(t, 2, f.Len())
	assert.Equal(t, 0, f.RowID(0))
	assert.Equal(t, 2, f.RowID(1))
	assert.LessOrEqual(t, f.Len(), tb.Len())
}

func TestOuterMergeKeepsAllRows(t *testing.T) {
	left := New("l", []string{"거래처", "합계"}, [][]string{{"A", "1"}, {"B", "2"}, {"", "9"}})
	right := New("r", []string{"거래처", "합계", "지역"}, [][]string{{"A", "10"}, {"A", "11"}, {"C", "3"}})

	out, err := OuterMerge(left, right, "거래처", "_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"거래처", "합계", "합계_1", "지역"}, out.Columns())
	// A×2, B, null key, C
	assert.Equal(t, 5, out.Len())
	assert.GreaterOrEqual(t, out.Len(), left.Len())
	assert.GreaterOrEqual(t, out.Len(), right.Len())
	assert.Equal(t, 11.0, out.At(1, "합계_1").Num)
	assert.Equal(t, "C", out.At(4, "거래처").Str)
	assert.True(t, out.At(4, "합계").IsNull())
}

func TestOuterMergeCollision(t *testing.T) {
	left := New("l", []string{"k", "v", "v_1"}, [][]string{{"a", "1", "2"}})
	right := New("r", []string{"k", "v"}, [][]string{{"a", "3"}})
	_, err := OuterMerge(left, right, "k", "_1")
	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "v_1", ce.Column)
}

func TestDerivePeriod(t *testing.T) {
	tb := salesTable()
	m, ok := tb.DerivePeriod("A-2", "월", Monthly)
	require.True(t, ok)
	assert.Equal(t, "2024-01", m.Values[0].Str)
	q, _ := tb.DerivePeriod("A-2", "분기", Quarterly)
	assert.Equal(t, "2023Q4", q.Values[2].Str)
	assert.Equal(t, []string{"A-2"}, tb.DateColumns())
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-05", "2024.3.5", "2024/03/05 10:00"} {
		d, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, 2024, d.Year())
		assert.Equal(t, 5, d.Day())
	}
	_, ok := ParseDate("yesterday")
	assert.False(t, ok)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "1,234,568", FormatNumber(1234567.8))
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "-1,500", FormatNumber(-1500))
	assert.Equal(t, "a", Text("a").Display())
}

func TestLoadFileXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"제품명", "수량"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"볼트", 12}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"너트", 3}))
	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.SaveAs(path))

	tb, err := LoadFile(path, LoadOptions{Normalize: true})
	require.NoError(t, err)
	assert.Equal(t, string(XLSX), tb.Encoding)
	assert.Equal(t, 2, tb.Len())
	assert.Equal(t, 12.0, tb.At(0, "수량").Num)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.csv"), LoadOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
