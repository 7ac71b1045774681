package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights are the score increments applied by the classifier. They were tuned
// by hand and are meant to be overridden from configuration.
type Weights struct {
	Keyword              float64 `yaml:"keyword"`
	TopN                 float64 `yaml:"top_n"`
	GroupSuffix          float64 `yaml:"group_suffix"`
	Comparison           float64 `yaml:"comparison"`
	ExplainSuffix        float64 `yaml:"explain_suffix"`
	ExplainLookupPenalty float64 `yaml:"explain_lookup_penalty"`
	NameAggregate        float64 `yaml:"name_aggregate"`
	NameLookup           float64 `yaml:"name_lookup"`
	DateAggregate        float64 `yaml:"date_aggregate"`
	DateLookup           float64 `yaml:"date_lookup"`
	// ConfidenceScale is the score that maps to full confidence.
	ConfidenceScale float64 `yaml:"confidence_scale"`
	// FallbackConfidence is reported when nothing scored.
	FallbackConfidence float64 `yaml:"fallback_confidence"`
}

// Rules is the classifier's vocabulary. Every keyword list is matched as a
// lowercase substring of the lowercased query. Lists are not required to be
// disjoint: the stock "무엇" scores for both Lookup and Explain, and entries
// differing only in case ("Top", "top") each count once per match.
type Rules struct {
	Aggregate       []string `yaml:"aggregate_keywords"`
	Lookup          []string `yaml:"lookup_keywords"`
	Explain         []string `yaml:"explain_keywords"`
	Comparison      []string `yaml:"comparison_words"`
	QuestionWords   []string `yaml:"question_words"`
	LatinStopwords  []string `yaml:"latin_stopwords"`
	ExplainSuffixes []string `yaml:"explain_suffixes"`
	TimeWords       []string `yaml:"time_words"`
	Weights         Weights  `yaml:"weights"`
}

// DefaultWeights returns the stock score increments.
func DefaultWeights() Weights {
	return Weights{
		Keyword:              1.0,
		TopN:                 2.0,
		GroupSuffix:          1.5,
		Comparison:           1.0,
		ExplainSuffix:        3.0,
		ExplainLookupPenalty: 1.0,
		NameAggregate:        1.0,
		NameLookup:           2.0,
		DateAggregate:        1.0,
		DateLookup:           0.5,
		ConfidenceScale:      3.0,
		FallbackConfidence:   0.3,
	}
}

// DefaultRules returns the built-in Korean vocabulary with English cues.
func DefaultRules() Rules {
	return Rules{
		Aggregate: []string{
			"합계", "총", "평균", "최대", "최소", "최댓값", "최솟값",
			"상위", "하위", "Top", "top", "랭킹", "순위",
			"추이", "전월", "전년", "증감", "증가", "감소", "변화",
			"월별", "분기별", "년도별", "기간별", "일별", "주별",
			"그룹별", "거래처별", "제품별", "품목별", "지역별", "담당자별",
			"필터", "조건", "범위",
			"몇", "얼마", "몇개", "몇건", "건수", "개수", "수량",
			"비율", "퍼센트", "%", "점유율", "비중",
			"bottom", "sum", "total", "average", "how many", "count", "ranking", "per ",
		},
		Lookup: []string{
			"특정", "해당", "이 거래처", "이 주문", "이 제품",
			"언제", "누가", "어디", "무엇",
			"주문번호", "거래코드", "사업자번호",
			"which", "when did", "who", "where", "order number", "visit",
		},
		Explain: []string{
			"이란", "무엇", "뭐야", "설명", "정의", "의미",
			"어떻게", "왜", "이유", "방법",
			"영업일지", "일지", "메모", "기록", "노트",
			"규정", "가이드", "지침", "정책",
			"코드북", "항목", "컬럼", "필드", "데이터",
			"A-", "B-", "C-", "D-", "E-", "F-", "G-", "H-", "I-", "J-",
			"what is", "what does", "meaning", "mean", "definition", "define", "explain", "field",
		},
		Comparison:    []string{"비교", "차이", "이상", "이하", "초과", "미만", "compare", "difference", "more than", "less than"},
		QuestionWords: []string{"무엇", "어디", "언제", "누구", "왜", "어떻게", "합계", "평균", "알려", "보여"},
		LatinStopwords: []string{
			"What", "Which", "Who", "When", "Where", "Why", "How", "Show", "Tell", "List", "Give",
			"Top", "Bottom", "Total", "Sum", "Average", "Recent", "Last", "The", "A", "An", "I", "Is", "Are", "Does", "Do",
		},
		ExplainSuffixes: []string{"이란", "란", "는", "은", "무엇", "뭐", "의미", "설명", "인가요", "인가", "mean", "means", "meaning"},
		TimeWords:       []string{"최근", "지난", "올해", "작년", "recent", "recently", "last", "this year", "last year"},
		Weights:         DefaultWeights(),
	}
}

// LoadRules reads a YAML rules file. Lists and weights present in the file
// replace the defaults; absent ones keep them.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return r, nil
}
