package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"learn-copilot-go/internal/model"
	"learn-copilot-go/internal/repository"
	"learn-copilot-go/pkg/llm"
	"learn-copilot-go/pkg/log"
)

const (
	// 单个学习时段最长 45 分钟
	maxSessionMinutes = 45
	// 单次最多生成 10 道练习题
	MaxPracticeQuestions = 10
	// 摘要输入截断到前 2000 字符
	summarizeInputLimit = 2000
)

// StudyService 接口定义了基于测验结果的学习规划与练习操作。
type StudyService interface {
	// AnalyzeWeakAreas 分析测验结果得出薄弱知识点。模型输出不可解析时退回规则分析。
	AnalyzeWeakAreas(ctx context.Context, report *model.ParsedTestReport) []model.WeakArea
	// RevisionScheduleForStudent 为学生生成复习计划，一天内重复请求命中缓存。
	RevisionScheduleForStudent(ctx context.Context, studentID string, studyTime, days int) (*model.RevisionSchedule, error)
	// GenerateRevisionSchedule 直接基于已知薄弱知识点生成复习计划。
	GenerateRevisionSchedule(ctx context.Context, weakAreas []model.WeakArea, studyTime, days int) *model.RevisionSchedule
	// GeneratePracticeQuestions 生成指定主题的选择题，模型输出不可解析时返回空列表。
	GeneratePracticeQuestions(ctx context.Context, topic, difficulty string, numQuestions int) ([]model.PracticeQuestion, error)
	// CheckAnswer 批改学生作答。模型不可用时退回大小写无关的字面比对。
	CheckAnswer(ctx context.Context, question, studentAnswer, correctAnswer string) *model.AnswerFeedback
	// Summarize 生成教学内容摘要。
	Summarize(ctx context.Context, content string, maxWords int) (string, error)
}

type studyService struct {
	contentRepo repository.ContentRepository
	convRepo    repository.ConversationRepository
	llmClient   llm.Client
}

// NewStudyService 创建一个新的 StudyService 实例。
func NewStudyService(contentRepo repository.ContentRepository, convRepo repository.ConversationRepository, llmClient llm.Client) StudyService {
	return &studyService{
		contentRepo: contentRepo,
		convRepo:    convRepo,
		llmClient:   llmClient,
	}
}

// AnalyzeWeakAreas 让模型从测验结果中提炼薄弱知识点，输出 JSON 数组。
func (s *studyService) AnalyzeWeakAreas(ctx context.Context, report *model.ParsedTestReport) []model.WeakArea {
	prompt := fmt.Sprintf(`Analyze the following test results to identify weak areas.

Score: %d/%d
Subject: %s
Topic: %s
Incorrect Topics: %s
Parsing Confidence: %.2f

Return plain valid JSON (no markdown/special characters). For each weak area, include:
- topic
- confidence_score (0.0 to 1.0)
- difficulty_level
- focus_areas
- study_approach

JSON Format:
[
    {
        "topic": "Sample",
        "confidence_score": 0.3,
        "difficulty_level": "intermediate",
        "focus_areas": ["concept1"],
        "study_approach": "Revise basics"
    }
]`, report.Score, report.Total, report.Subject, report.Topic, strings.Join(report.IncorrectTopics, ", "), report.ParsingConfidence)

	response, err := s.llmClient.Generate(ctx, prompt)
	if err != nil {
		log.Errorf("[StudyService] 分析薄弱知识点失败, 使用规则分析: %v", err)
		return fallbackWeakAreas(report)
	}

	var areas []model.WeakArea
	if !llm.ExtractArray(response, &areas) {
		log.Warnf("[StudyService] 模型输出不可解析, 使用规则分析")
		return fallbackWeakAreas(report)
	}
	return areas
}

// fallbackWeakAreas 按得分率与错题列表做规则分析。
func fallbackWeakAreas(report *model.ParsedTestReport) []model.WeakArea {
	var areas []model.WeakArea

	var ratio float64
	if report.Total > 0 {
		ratio = float64(report.Score) / float64(report.Total)
	}

	if ratio < 0.7 {
		focus := report.IncorrectTopics
		if len(focus) > 3 {
			focus = focus[:3]
		}
		areas = append(areas, model.WeakArea{
			Topic:           report.Topic,
			ConfidenceScore: ratio,
			DifficultyLevel: "intermediate",
			FocusAreas:      focus,
			StudyApproach:   "Review fundamentals and practice",
		})
	}

	incorrect := report.IncorrectTopics
	if len(incorrect) > 3 {
		incorrect = incorrect[:3]
	}
	for _, topic := range incorrect {
		topic = strings.TrimSpace(topic)
		if len(topic) <= 2 {
			continue
		}
		areas = append(areas, model.WeakArea{
			Topic:           topic,
			ConfidenceScore: 0.2,
			DifficultyLevel: "intermediate",
			FocusAreas:      []string{topic},
			StudyApproach:   "Focus on understanding basics",
		})
	}
	return areas
}

// RevisionScheduleForStudent 汇总学生最近的测验结果，生成个性化复习计划并缓存。
func (s *studyService) RevisionScheduleForStudent(ctx context.Context, studentID string, studyTime, days int) (*model.RevisionSchedule, error) {
	if cached, err := s.convRepo.GetCachedSchedule(ctx, studentID); err == nil && cached != nil {
		log.Infof("[StudyService] 复习计划命中缓存, student: %s", studentID)
		return cached, nil
	}

	results, err := s.contentRepo.FindTestResultsByStudent(studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test results: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no test results found for student %s", studentID)
	}

	var weakAreas []model.WeakArea
	for _, r := range results {
		weakAreas = append(weakAreas, s.AnalyzeWeakAreas(ctx, reportFromRecord(&r))...)
	}
	if len(weakAreas) == 0 {
		return nil, fmt.Errorf("no weak areas identified for student %s", studentID)
	}

	schedule := s.GenerateRevisionSchedule(ctx, weakAreas, studyTime, days)
	if err := s.convRepo.CacheSchedule(ctx, studentID, schedule); err != nil {
		// 缓存失败只记日志，不影响结果
		log.Warnf("[StudyService] 缓存复习计划失败: %v", err)
	}
	return schedule, nil
}

// reportFromRecord 把数据库中的测验记录还原为解析结果。
func reportFromRecord(record *model.TestResult) *model.ParsedTestReport {
	var incorrect []string
	if record.IncorrectTopics != "" {
		_ = json.Unmarshal([]byte(record.IncorrectTopics), &incorrect)
	}
	return &model.ParsedTestReport{
		Score:             record.Score,
		Total:             record.Total,
		Subject:           record.Subject,
		Topic:             record.Topic,
		IncorrectTopics:   incorrect,
		ParsingConfidence: record.ParsingConfidence,
	}
}

// GenerateRevisionSchedule 让模型生成复习计划，输出不可解析时退回规则编排。
func (s *studyService) GenerateRevisionSchedule(ctx context.Context, weakAreas []model.WeakArea, studyTime, days int) *model.RevisionSchedule {
	var sb strings.Builder
	for _, area := range weakAreas {
		fmt.Fprintf(&sb, "- %s: Confidence %.2f, Difficulty: %s\n", area.Topic, area.ConfidenceScore, area.DifficultyLevel)
	}

	prompt := fmt.Sprintf(`Create a personalized %d-day revision schedule for a student with these weak areas:
%s
The student can study for %d minutes per day.

Guidelines:
- Prioritize topics with low confidence scores
- Balance difficulty levels across days
- Use different study methods
- Allocate reasonable time for each topic

Return the schedule as plain valid JSON. Do not use any special characters or markdown like *, _, or backticks.

JSON Format:
{
    "schedule": [
        {
            "day": 1,
            "date": "2024-01-15",
            "topics": [
                {
                    "topic": "Topic Name",
                    "time_allocated": 30,
                    "study_method": "Practice problems",
                    "priority": "high",
                    "resources": ["textbook chapter 5", "online exercises"]
                }
            ]
        }
    ],
    "priorities": ["topic1", "topic2"],
    "study_methods": {"topic1": "method"},
    "total_study_time": %d
}`, days, sb.String(), studyTime, studyTime*days)

	response, err := s.llmClient.Generate(ctx, prompt)
	if err != nil {
		log.Errorf("[StudyService] 生成复习计划失败, 使用规则编排: %v", err)
		return fallbackSchedule(weakAreas, studyTime, days)
	}

	var schedule model.RevisionSchedule
	if !llm.ExtractObject(response, &schedule) || len(schedule.Schedule) == 0 {
		log.Warnf("[StudyService] 模型输出不可解析, 使用规则编排")
		return fallbackSchedule(weakAreas, studyTime, days)
	}
	return &schedule
}

// fallbackSchedule 按置信度升序轮转分配每日学习时段。
func fallbackSchedule(weakAreas []model.WeakArea, studyTime, days int) *model.RevisionSchedule {
	sorted := make([]model.WeakArea, len(weakAreas))
	copy(sorted, weakAreas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ConfidenceScore < sorted[j].ConfidenceScore
	})

	baseDate := time.Now()
	schedule := make([]model.ScheduleDay, 0, days)
	for day := 0; day < days; day++ {
		var sessions []model.StudySession
		remaining := studyTime
		topicIndex := 0
		if len(sorted) > 0 {
			topicIndex = day % len(sorted)
		}

		for remaining > 0 && len(sorted) > 0 {
			area := sorted[topicIndex%len(sorted)]
			allocated := remaining
			if allocated > maxSessionMinutes {
				allocated = maxSessionMinutes
			}

			priority := "medium"
			if area.ConfidenceScore < 0.5 {
				priority = "high"
			}
			sessions = append(sessions, model.StudySession{
				Topic:         area.Topic,
				TimeAllocated: allocated,
				StudyMethod:   studyMethodFor(area.DifficultyLevel),
				Priority:      priority,
				Resources:     []string{"textbook", "online resources"},
			})

			remaining -= allocated
			topicIndex++
		}

		schedule = append(schedule, model.ScheduleDay{
			Day:    day + 1,
			Date:   baseDate.AddDate(0, 0, day).Format("2006-01-02"),
			Topics: sessions,
		})
	}

	priorities := make([]string, 0, 3)
	for _, area := range sorted {
		priorities = append(priorities, area.Topic)
		if len(priorities) == 3 {
			break
		}
	}

	methods := make(map[string]string, len(sorted))
	for _, area := range sorted {
		methods[area.Topic] = studyMethodFor(area.DifficultyLevel)
	}

	return &model.RevisionSchedule{
		Schedule:       schedule,
		Priorities:     priorities,
		StudyMethods:   methods,
		TotalStudyTime: studyTime * days,
	}
}

func studyMethodFor(difficultyLevel string) string {
	switch difficultyLevel {
	case "beginner":
		return "Read basics and do simple exercises"
	case "intermediate":
		return "Practice problems and review examples"
	case "advanced":
		return "Solve complex problems and analyze solutions"
	default:
		return "Practice and review"
	}
}

// GeneratePracticeQuestions 生成选择题列表。
func (s *studyService) GeneratePracticeQuestions(ctx context.Context, topic, difficulty string, numQuestions int) ([]model.PracticeQuestion, error) {
	if numQuestions <= 0 {
		numQuestions = 5
	}
	if numQuestions > MaxPracticeQuestions {
		return nil, fmt.Errorf("at most %d questions allowed", MaxPracticeQuestions)
	}

	prompt := fmt.Sprintf(`Generate %d multiple-choice practice questions for the topic "%s" at a %s level.

For each question, include:
- question
- 4 options (A, B, C, D)
- correct answer
- short explanation

Output only valid plain JSON without special characters or markdown.`, numQuestions, topic, difficulty)

	response, err := s.llmClient.Generate(ctx, prompt)
	if err != nil {
		log.Errorf("[StudyService] 生成练习题失败: %v", err)
		return []model.PracticeQuestion{}, nil
	}

	var questions []model.PracticeQuestion
	if !llm.ExtractArray(response, &questions) {
		log.Warnf("[StudyService] 练习题输出不可解析, 返回空列表")
		return []model.PracticeQuestion{}, nil
	}
	return questions, nil
}

// CheckAnswer 批改学生作答并给出改进建议。
func (s *studyService) CheckAnswer(ctx context.Context, question, studentAnswer, correctAnswer string) *model.AnswerFeedback {
	prompt := fmt.Sprintf(`Question: %s
Student Answer: %s
Correct Answer: %s

Give feedback in this format:
{
    "is_correct": true/false,
    "feedback": "Simple feedback",
    "correct_explanation": "Explanation",
    "improvement_hints": ["hint1", "hint2"]
}

Use only valid JSON. No special characters or markdown.`, question, studentAnswer, correctAnswer)

	response, err := s.llmClient.Generate(ctx, prompt)
	if err == nil {
		var feedback model.AnswerFeedback
		if llm.ExtractObject(response, &feedback) {
			return &feedback
		}
	} else {
		log.Errorf("[StudyService] 批改作答失败, 使用字面比对: %v", err)
	}

	return &model.AnswerFeedback{
		IsCorrect:          strings.EqualFold(strings.TrimSpace(studentAnswer), strings.TrimSpace(correctAnswer)),
		Feedback:           "Unable to parse response",
		CorrectExplanation: fmt.Sprintf("The correct answer is %s.", correctAnswer),
		ImprovementHints:   []string{"Review the topic", "Try similar problems"},
	}
}

// Summarize 生成教学内容摘要，输入超长时只取前 2000 字符。
func (s *studyService) Summarize(ctx context.Context, content string, maxWords int) (string, error) {
	if maxWords <= 0 {
		maxWords = 200
	}
	if runes := []rune(content); len(runes) > summarizeInputLimit {
		content = string(runes[:summarizeInputLimit])
	}

	prompt := fmt.Sprintf(`Summarize this educational content in under %d words.

Use plain English. Avoid special characters or formatting. Focus only on important concepts and key ideas.

Content:
%s

Summary:`, maxWords, content)

	summary, err := s.llmClient.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to summarize content: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
