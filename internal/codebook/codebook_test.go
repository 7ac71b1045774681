package codebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liszzmword/ai-data-analyst/internal/table"
)

const sampleCSV = `파일 구분,번호,항목,항목설명
거래처 데이터,B-1,거래처명,거래처 상호
거래처 데이터,B-2,거래처 코드,내부 관리 코드
sales data,A-2,매출일,세금계산서 발행일
sales data,C-2,제품명,
sales data,,빈 코드,무시됨
영업일지,J-6,방문 목적,영업 담당자가 기록한 방문 사유
`

func writeCodebook(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "데이터 db.csv")
	require.NoError(t, os.WriteFile(p, []byte("\ufeff"+sampleCSV), 0o644))
	return p
}

func TestLoadBuildsMappings(t *testing.T) {
	cb, err := Load(writeCodebook(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cb.Len())
	assert.Equal(t, []string{"sales data", "거래처 데이터", "영업일지"}, cb.Kinds())
	assert.Equal(t, map[string]string{"B-1": "거래처명", "B-2": "거래처 코드"}, cb.Mapping("거래처 데이터"))
	assert.Equal(t, "세금계산서 발행일", cb.Description("sales data", "A-2"))
	assert.Equal(t, "", cb.Description("sales data", "Z-9"))
	assert.Equal(t, "제품명", cb.Translate("sales data", "C-2"))
	assert.Equal(t, "C-9", cb.Translate("sales data", "C-9"))
	code, ok := cb.Reverse("영업일지", "방문 목적")
	assert.True(t, ok)
	assert.Equal(t, "J-6", code)
	assert.Empty(t, cb.Mapping("unknown"))
}

func TestFromTableMissingColumn(t *testing.T) {
	tb := table.New("cb.csv", []string{"파일 구분", "번호"}, [][]string{{"a", "b"}})
	_, err := FromTable(tb)
	var mc *MissingColumnError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, ColName, mc.Column)
}

func TestDuplicateCodeKeepsLast(t *testing.T) {
	cb := New([]Entry{{Kind: "k", Code: "A-1", Name: "old"}, {Kind: "k", Code: "A-1", Name: "new"}})
	assert.Equal(t, 1, cb.Len())
	assert.Equal(t, "new", cb.Translate("k", "A-1"))
}

func TestKindResolution(t *testing.T) {
	cb := New([]Entry{{Kind: "매출 데이터", Code: "A-1", Name: "x"}})
	assert.Equal(t, "매출 데이터", cb.KindForDataset(DatasetSales))
	assert.Equal(t, "거래처 데이터", cb.KindForDataset(DatasetClients))

	k, ok := KindForFilename("2024 Sales Data.csv")
	assert.True(t, ok)
	assert.Equal(t, "sales data", k)
	k, _ = KindForFilename("거래처 목록.xlsx")
	assert.Equal(t, "거래처 데이터", k)
	_, ok = KindForFilename("photo.png")
	assert.False(t, ok)
}

func TestApplyRenamesCodedColumns(t *testing.T) {
	cb, err := Load(writeCodebook(t), nil)
	require.NoError(t, err)
	tb := table.New("sales data.csv", []string{"A-2", "C-2", "합계"}, [][]string{{"2024-01-01", "볼트", "10"}})
	out, n := cb.Apply(tb, "sales data")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"매출일", "제품명", "합계"}, out.Columns())
	assert.Equal(t, []string{"매출일", "제품명", "합계"}, cb.TranslateColumns(tb, DatasetSales).Columns())
}

func TestSearch(t *testing.T) {
	cb, err := Load(writeCodebook(t), nil)
	require.NoError(t, err)

	hits := cb.Search("what does field J-6 mean?", 5)
	require.NotEmpty(t, hits)
	assert.Equal(t, "J-6", hits[0].Code)

	hits = cb.Search("거래처 코드", 5)
	require.NotEmpty(t, hits)
	assert.Equal(t, "B-2", hits[0].Code)

	hits = cb.Search("매출일이란?", 5)
	require.NotEmpty(t, hits)
	assert.Equal(t, "A-2", hits[0].Code)

	assert.Empty(t, cb.Search("zzz qqq", 5))
	assert.Len(t, cb.Search("거래처", 1), 1)
}
