package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	cases := map[string]string{
		"사업자번호 214-86-59900":    "사업자번호 214-**-***00",
		"주민 123456-1234567":     "주민 123456-*******",
		"연락처 010-1234-5678 입니다": "연락처 010-****-5678 입니다",
		"02-123-4567":           "02-***-4567",
		"no digits here":        "no digits here",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Text(in), in)
	}
}

func TestTextIdempotentAndHidesOriginal(t *testing.T) {
	originals := []string{"214-86-59900", "123456-1234567", "010-1234-5678", "031-987-6543"}
	for _, o := range originals {
		once := Text(o)
		assert.Equal(t, once, Text(once), o)
		assert.NotContains(t, once, o)
	}
}

func TestSensitiveColumn(t *testing.T) {
	assert.True(t, SensitiveColumn("사업자등록번호"))
	assert.True(t, SensitiveColumn("담당자 핸드폰"))
	assert.False(t, SensitiveColumn("거래처명"))
	assert.Equal(t, "010-****-5678", Field("전화번호", "010-1234-5678"))
	assert.Equal(t, "010-1234-5678", Field("메모", "010-1234-5678"))
}
