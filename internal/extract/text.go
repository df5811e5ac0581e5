package extract

import "strings"

func extractPlainText(data []byte) (string, error) {
	// Drop invalid byte sequences instead of failing; uploads are not always
	// honest about their encoding.
	return strings.ToValidUTF8(string(data), ""), nil
}
