package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"top level message", `{"message":"X"}`, "X", true},
		{"errors array detail", `{"errors":[{"detail":"Y"}]}`, "Y", true},
		{"errors field map", `{"errors":{"email":["Z"]}}`, "Z", true},
		{"message wins over errors", `{"message":"first","errors":[{"detail":"second"}]}`, "first", true},
		{"non-string message falls through", `{"message":42,"errors":[{"detail":"Y"}]}`, "Y", true},
		{"array without detail falls through", `{"errors":[{"code":"bad"}]}`, "", false},
		{"field map picks sorted first field", `{"errors":{"password":["too short"],"email":["taken"]}}`, "taken", true},
		{"field map with empty list", `{"errors":{"email":[]}}`, "", false},
		{"empty errors array", `{"errors":[]}`, "", false},
		{"unrelated json", `{"error":"nope"}`, "", false},
		{"not json", `<html>Bad Gateway</html>`, "", false},
		{"empty body", ``, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseErrorMessage([]byte(tt.body))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrorMessageEmptyStringMessage(t *testing.T) {
	// An explicit empty message is still a message.
	got, ok := ParseErrorMessage([]byte(`{"message":""}`))
	assert.True(t, ok)
	assert.Equal(t, "", got)
}

func BenchmarkParseErrorMessage(b *testing.B) {
	b.Run("message", func(b *testing.B) {
		body := []byte(`{"message":"Invalid credentials"}`)
		for i := 0; i < b.N; i++ {
			ParseErrorMessage(body)
		}
	})

	b.Run("field_errors", func(b *testing.B) {
		body := []byte(`{"errors":{"email":["has already been taken"],"password":["is too short"]}}`)
		for i := 0; i < b.N; i++ {
			ParseErrorMessage(body)
		}
	})

	b.Run("no_match", func(b *testing.B) {
		body := []byte(`<html><body>Bad Gateway</body></html>`)
		for i := 0; i < b.N; i++ {
			ParseErrorMessage(body)
		}
	})
}
