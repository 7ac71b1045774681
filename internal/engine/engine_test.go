package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

func companyAmount() *table.Table {
	return table.New("sales", []string{"company", "amount"}, [][]string{
		{"A", "100"}, {"B", "300"}, {"A", "50"},
	})
}

func salesTable() *table.Table {
	return table.New("sales data.csv", []string{"A-2", "B-1", "C-2", "합계"}, [][]string{
		{"2023-12-28", "한국상사", "볼트", "500"},
		{"2024-01-05", "한국상사", "너트", "100"},
		{"2024-01-20", "대한기공", "볼트", "250"},
		{"2024-02-03", "대한기공", "와셔", "40"},
		{"2024-02-15", "미래전자", "볼트", "900"},
	})
}

func TestAggregateTopCompanyByAmount(t *testing.T) {
	e := New(Tables{codebook.DatasetSales: companyAmount()}, nil)
	r := e.Aggregate("top 1 company by amount", All)

	require.NotNil(t, r.Table)
	assert.Equal(t, codebook.DatasetSales, r.Dataset)
	require.Equal(t, 1, r.Table.Len())
	assert.Equal(t, "B", r.Table.At(0, "company").Str)
	assert.Equal(t, 300.0, r.Table.At(0, "amount").Num)
	assert.Equal(t, []string{"상위 1개"}, r.Conditions)
	assert.Contains(t, r.Answer(), "- amount: 300")
	assert.Equal(t, router.Aggregate, r.Mode())
}

func TestParseAggregate(t *testing.T) {
	tests := []struct {
		query string
		want  AggregateSpec
	}{
		{"매출 상위 5개 거래처는?", AggregateSpec{GroupBy: GroupCompany, Sort: Desc, Limit: 5}},
		{"매출 상위 거래처", AggregateSpec{GroupBy: GroupCompany, Sort: Desc, Limit: DefaultLimit}},
		{"거래처별 매출 합계를 알려주세요", AggregateSpec{Fn: table.Sum, GroupBy: GroupCompany}},
		{"2024년 1월 매출 추이", AggregateSpec{Date: DateFilter{Year: 2024, Month: 1}}},
		{"제품별 평균 단가는?", AggregateSpec{Fn: table.Mean, GroupBy: GroupProduct}},
		{"분기별 최대 금액", AggregateSpec{Fn: table.Max, GroupBy: GroupQuarter}},
		{"bottom 3 products by average amount", AggregateSpec{Fn: table.Mean, GroupBy: GroupProduct, Sort: Asc, Limit: 3}},
		{"how many orders per month", AggregateSpec{Fn: table.Count, GroupBy: GroupMonth}},
		{"stop", AggregateSpec{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAggregate(tt.query))
		})
	}
}

func TestAggregateTopNRowCount(t *testing.T) {
	e := New(Tables{codebook.DatasetSales: salesTable()}, nil)
	for n := 1; n <= 5; n++ {
		r := e.Aggregate(fmt.Sprintf("거래처 매출 top %d", n), All)
		require.NotNil(t, r.Table, n)
		want := n
		if want > 3 {
			want = 3
		}
		require.Equal(t, want, r.Table.Len(), n)
		for i := 1; i < r.Table.Len(); i++ {
			assert.Greater(t, r.Table.At(i-1, "합계").Num, r.Table.At(i, "합계").Num)
		}
	}

	r := e.Aggregate("거래처 매출 하위 2", All)
	require.Equal(t, 2, r.Table.Len())
	assert.Equal(t, "대한기공", r.Table.At(0, "B-1").Str)
	assert.Less(t, r.Table.At(0, "합계").Num, r.Table.At(1, "합계").Num)
}

func TestAggregateDateFilterNarrows(t *testing.T) {
	src := salesTable()
	e := New(Tables{codebook.DatasetSales: src}, nil)

	r := e.Aggregate("2024년 매출 합계", All)
	require.NotNil(t, r.Table)
	assert.Equal(t, []string{"2024년 데이터"}, r.Conditions)
	assert.Equal(t, 1290.0, r.Table.At(0, "합계").Num)
	assert.Contains(t, r.SQLEquivalent, "YEAR(A-2) = 2024")

	for _, d := range []DateFilter{{Year: 2024}, {Year: 2024, Month: 1}, {Month: 2}, {Year: 1999}} {
		out := filterDate(src, "A-2", d)
		assert.LessOrEqual(t, out.Len(), src.Len())
	}
	assert.Equal(t, 2, filterDate(src, "A-2", DateFilter{Year: 2024, Month: 1}).Len())
}

func TestAggregateByMonthAndCount(t *testing.T) {
	e := New(Tables{codebook.DatasetSales: salesTable()}, nil)

	r := e.Aggregate("월별 매출 합계", All)
	require.NotNil(t, r.Table)
	assert.Equal(t, []string{"2023-12", "2024-01", "2024-02"}, r.Table.Unique("월"))
	assert.Equal(t, 350.0, r.Table.At(1, "합계").Num)
	assert.Contains(t, r.Answer(), "**결과**: 총 3개 항목")

	r = e.Aggregate("제품별 건수", All)
	require.NotNil(t, r.Table)
	assert.Equal(t, []string{"C-2", "건수"}, r.Table.Columns())
	assert.Equal(t, 1.0, r.Table.At(0, "건수").Num)
}

func TestAggregateWithoutNumericColumnsCountsRows(t *testing.T) {
	journal := table.New("영업일지.csv", []string{"company", "memo"}, [][]string{{"A", "x"}, {"B", "y"}})
	e := New(Tables{codebook.DatasetJournal: journal}, nil)
	r := e.Aggregate("방문 활동 수", All)
	require.NotNil(t, r.Table)
	assert.Equal(t, 2.0, r.Table.At(0, "건수").Num)
	assert.Equal(t, "**계산 결과**:\n- 건수: 2", r.Answer())
}

func TestAggregateNoDataAndNoResult(t *testing.T) {
	r := New(Tables{}, nil).Aggregate("매출 합계", All)
	assert.Equal(t, noDataAnswer, r.Answer())
	assert.Nil(t, r.Table)

	e := New(Tables{codebook.DatasetSales: table.New("s", []string{"합계"}, [][]string{{"1"}})}, nil)
	r = e.Aggregate("거래처별 합계", codebook.DatasetSales)
	assert.Nil(t, r.Table)
	assert.Equal(t, noResultAnswer, r.Answer())
}

func TestAggregateLongResultIsCapped(t *testing.T) {
	var rows [][]string
	for i := 0; i < 12; i++ {
		rows = append(rows, []string{fmt.Sprintf("회사%02d", i), fmt.Sprint(1000 * (i + 1))})
	}
	e := New(Tables{codebook.DatasetSales: table.New("s", []string{"거래처", "금액"}, rows)}, nil)
	r := e.Aggregate("거래처별 금액 합계", All)
	require.Equal(t, 12, r.Table.Len())
	assert.Contains(t, r.Answer(), "*(상위 10개만 표시, 전체 12개)*")
	assert.Contains(t, r.Answer(), "10,000")
	assert.NotContains(t, r.Answer(), "회사11")
	assert.Len(t, r.SampleRows, 5)
}

func TestAggregateTranslatesColumns(t *testing.T) {
	cb := codebook.New([]codebook.Entry{
		{Kind: "sales data", Code: "B-1", Name: "거래처명"},
		{Kind: "sales data", Code: "A-2", Name: "매출일"},
	})
	e := New(Tables{codebook.DatasetSales: salesTable()}, cb)
	r := e.Aggregate("거래처별 합계", codebook.DatasetSales)
	require.NotNil(t, r.Table)
	assert.Equal(t, []string{"거래처명", "합계"}, r.Table.Columns())
}

func journalTable() *table.Table {
	rows := [][]string{{"Beta Ltd", "2024-03-01", "call"}}
	for d := 1; d <= 12; d++ {
		rows = append(rows, []string{"Acme Corp", fmt.Sprintf("2024-01-%02d", d), fmt.Sprintf("visit %d", d)})
	}
	return table.New("영업일지.csv", []string{"company", "date", "memo"}, rows)
}

func TestLookupRecentVisit(t *testing.T) {
	e := New(Tables{codebook.DatasetJournal: journalTable()}, nil)
	r := e.Lookup("recent visit to Acme Corp", All)

	assert.Equal(t, []string{codebook.DatasetJournal}, r.Datasets)
	assert.Equal(t, "Acme Corp", r.Conditions.Name)
	assert.True(t, r.Conditions.Recent)
	require.Len(t, r.Records, maxLookupRows)

	var prev string
	for i, m := range r.Records {
		fields := map[string]string{}
		for _, f := range m.Fields {
			fields[f.Name] = f.Value
		}
		assert.Contains(t, fields["company"], "Acme Corp")
		if i > 0 {
			assert.Greater(t, prev, fields["date"])
		}
		prev = fields["date"]
	}
	assert.Equal(t, 12, r.Records[0].RowID)
	assert.Contains(t, r.Answer(), "*(상위 5개만 상세 표시, 전체 10개)*")
	assert.Equal(t, 5, strings.Count(r.Answer(), "### ["))
}

func TestLookupMasksSensitiveColumns(t *testing.T) {
	clients := table.New("거래처 데이터.csv", []string{"B-1", "B-2", "사업자등록번호", "전화번호", "비고"}, [][]string{
		{"한국케미칼상사", "K001", "214-86-59900", "010-1234-5678", ""},
		{"대한기공", "K002", "123-45-67890", "02-555-1234", "우수"},
	})
	e := New(Tables{codebook.DatasetClients: clients}, nil)
	r := e.Lookup("한국케미칼상사의 정보를 알려주세요", All)

	require.Len(t, r.Records, 1)
	ans := r.Answer()
	assert.Contains(t, ans, "**검색 조건**: 이름: 한국케미칼상사")
	assert.Contains(t, ans, "### [1] 거래처 (행 0)")
	assert.Contains(t, ans, "214-**-***00")
	assert.Contains(t, ans, "010-****-5678")
	assert.NotContains(t, ans, "214-86-59900")
	assert.NotContains(t, ans, "비고")
}

func TestLookupNotFound(t *testing.T) {
	e := New(Tables{codebook.DatasetJournal: journalTable()}, nil)
	r := e.Lookup("없는회사 방문", All)
	assert.Empty(t, r.Records)
	assert.Equal(t, "검색 조건에 맞는 레코드를 찾을 수 없습니다.\n검색 조건: 이름: 없는회사", r.Answer())
}

func TestLookupSkipsMissingColumns(t *testing.T) {
	src := table.New("s", []string{"memo"}, [][]string{{"a"}, {"b"}})
	e := New(Tables{codebook.DatasetSales: src}, nil)
	r := e.Lookup("한국상사 주문", codebook.DatasetSales)
	assert.Len(t, r.Records, 2)
}

func TestParseLookup(t *testing.T) {
	c := ParseLookup("2024년 3월 ABC123 주문 내역", router.Default())
	assert.Equal(t, "ABC123", c.Code)
	assert.Equal(t, DateFilter{Year: 2024, Month: 3}, c.Date)
	assert.Equal(t, "", c.Name)
	assert.Equal(t, "코드: ABC123, 2024년 03월", c.String())

	c = ParseLookup("이놀의 거래처 정보", nil)
	assert.Equal(t, "이놀", c.Name)
	assert.Equal(t, "", c.Code)

	c = ParseLookup("지난 방문", nil)
	assert.True(t, c.Past)
	assert.Equal(t, "(없음)", c.String())
}

type fakeSearcher struct {
	hits []codebook.Entry
	err  error
}

func (f fakeSearcher) Search(context.Context, string, int) ([]codebook.Entry, error) {
	return f.hits, f.err
}

func explainCodebook() *codebook.Codebook {
	return codebook.New([]codebook.Entry{
		{Kind: "영업일지", Code: "J-6", Name: "방문 목적", Description: "방문 사유"},
		{Kind: "sales data", Code: "A-2", Name: "매출일"},
	})
}

func TestExplain(t *testing.T) {
	e := New(Tables{}, explainCodebook())
	r := e.Explain(context.Background(), "what does field J-6 mean?")
	require.NotEmpty(t, r.Entries)
	assert.Equal(t, "J-6", r.Entries[0].Code)
	assert.Contains(t, r.Answer(), "1. 번호: J-6\n   항목: 방문 목적\n   설명: 방문 사유\n   파일: 영업일지")

	r = New(Tables{}, nil).Explain(context.Background(), "zzz")
	assert.Equal(t, "**코드북 정보**:\n\n관련 코드북 항목 없음", r.Answer())
}

func TestExplainMergesSemanticHits(t *testing.T) {
	cb := explainCodebook()
	hit := codebook.Entry{Kind: "sales data", Code: "A-2", Name: "매출일"}
	e := New(Tables{}, cb, WithSearcher(fakeSearcher{hits: []codebook.Entry{hit, hit}}))
	r := e.Explain(context.Background(), "J-6")
	require.Len(t, r.Entries, 2)
	assert.Equal(t, "A-2", r.Entries[1].Code)
	assert.Contains(t, r.Answer(), "설명: N/A")

	e = New(Tables{}, cb, WithSearcher(fakeSearcher{err: errors.New("offline")}))
	r = e.Explain(context.Background(), "J-6")
	assert.Len(t, r.Entries, 1)
}

func TestRunDispatches(t *testing.T) {
	e := New(Tables{codebook.DatasetSales: companyAmount()}, explainCodebook())
	ctx := context.Background()
	for _, m := range router.Modes {
		out := e.Run(ctx, m, "top 1 company by amount", All)
		assert.Equal(t, m, out.Mode())
		switch out.(type) {
		case *AggregateResult, *LookupResult, *ExplainResult:
		default:
			t.Fatalf("unexpected outcome %T", out)
		}
	}
}

func TestValidFilter(t *testing.T) {
	for _, name := range []string{All, codebook.DatasetClients, codebook.DatasetSales, codebook.DatasetJournal} {
		assert.True(t, ValidFilter(name), name)
	}
	assert.False(t, ValidFilter(""))
	assert.False(t, ValidFilter("재고"))
}
