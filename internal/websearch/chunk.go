package websearch

// chunkText 把文本按固定字符长度切块（按 rune 计数）
// 空文本返回 nil
func chunkText(s string, size int) []string {
	if s == "" || size <= 0 {
		return nil
	}

	runes := []rune(s)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// truncateRunes 按 rune 截断到 max 个字符
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
