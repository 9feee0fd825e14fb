package service

import (
	"regexp"
	"strconv"
	"strings"

	"learn-copilot-go/internal/model"
)

// 测验报告的字段抽取按模式表逐个尝试，命中即累加解析置信度：
// 分数 0.4，科目 0.3，错题知识点 0.3。
var (
	scorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Score[:\s]+(\d+)[/\s]+(\d+)`),
		regexp.MustCompile(`(?i)Total[:\s]+(\d+)[/\s]+(\d+)`),
		regexp.MustCompile(`(?i)Result[:\s]+(\d+)[/\s]+(\d+)`),
		regexp.MustCompile(`(?i)Marks[:\s]+(\d+)[/\s]+(\d+)`),
	}
	subjectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Subject[:\s]+([A-Za-z ]+)`),
		regexp.MustCompile(`(?i)Course[:\s]+([A-Za-z ]+)`),
		regexp.MustCompile(`(?i)Topic[:\s]+([A-Za-z ]+)`),
	}
	incorrectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Incorrect[:\s]+(.+)`),
		regexp.MustCompile(`(?i)Wrong[:\s]+(.+)`),
		regexp.MustCompile(`(?i)Failed[:\s]+(.+)`),
	}
	topicSeparators = regexp.MustCompile(`[,;|]+`)

	// 报告中未标明错题时，从正文中识别常见学科关键词作为候选知识点
	topicKeywords = regexp.MustCompile(`(?i)\b(algebra|geometry|calculus|statistics|probability|physics|chemistry|biology|science|history|geography|literature|english|programming|coding|computer|software|economics|business|finance|accounting)\b`)
)

const (
	maxIncorrectTopics = 10
	maxKeywordTopics   = 5
)

// ParseTestReport 从测验报告的纯文本中抽取结构化结果。
// 字段缺失不报错，只降低 ParsingConfidence，由调用方决定是否采信。
func ParseTestReport(text string) *model.ParsedTestReport {
	result := &model.ParsedTestReport{
		Subject:         "Unknown",
		Topic:           "General",
		IncorrectTopics: []string{},
	}

	var confidence float64

	for _, p := range scorePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		score, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		result.Score = score
		result.Total = total
		confidence += 0.4
		break
	}

	for _, p := range subjectPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		subject := strings.TrimSpace(m[1])
		if len(subject) > 2 {
			result.Subject = subject
			result.Topic = subject
			confidence += 0.3
			break
		}
	}

	for _, p := range incorrectPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		line := strings.TrimSpace(m[1])
		if line == "" {
			continue
		}
		for _, topic := range topicSeparators.Split(line, -1) {
			topic = strings.TrimSpace(topic)
			if len(topic) > 2 {
				result.IncorrectTopics = append(result.IncorrectTopics, topic)
			}
			if len(result.IncorrectTopics) >= maxIncorrectTopics {
				break
			}
		}
		if len(result.IncorrectTopics) > 0 {
			confidence += 0.3
			break
		}
	}

	if len(result.IncorrectTopics) == 0 {
		result.IncorrectTopics = keywordTopics(text)
	}

	result.ParsingConfidence = confidence
	return result
}

// keywordTopics 去重后最多返回 maxKeywordTopics 个关键词，首字母大写。
func keywordTopics(text string) []string {
	seen := make(map[string]bool)
	topics := []string{}
	for _, m := range topicKeywords.FindAllString(text, -1) {
		topic := strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
		if seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
		if len(topics) >= maxKeywordTopics {
			break
		}
	}
	return topics
}
