package model

// ParsedTestReport 是从测验 PDF 文本中解析出的结构化结果。
type ParsedTestReport struct {
	Score             int      `json:"score"`
	Total             int      `json:"total"`
	Subject           string   `json:"subject"`
	Topic             string   `json:"topic"`
	IncorrectTopics   []string `json:"incorrectTopics"`
	ParsingConfidence float64  `json:"parsingConfidence"`
}

// WeakArea 描述学生的一个薄弱知识点。
type WeakArea struct {
	Topic           string   `json:"topic"`
	ConfidenceScore float64  `json:"confidence_score"`
	DifficultyLevel string   `json:"difficulty_level"`
	FocusAreas      []string `json:"focus_areas"`
	StudyApproach   string   `json:"study_approach"`
}

// StudySession 是复习计划中单日内的一个学习时段。
type StudySession struct {
	Topic         string   `json:"topic"`
	TimeAllocated int      `json:"time_allocated"`
	StudyMethod   string   `json:"study_method"`
	Priority      string   `json:"priority"`
	Resources     []string `json:"resources"`
}

// ScheduleDay 是复习计划中的一天。
type ScheduleDay struct {
	Day    int            `json:"day"`
	Date   string         `json:"date"`
	Topics []StudySession `json:"topics"`
}

// RevisionSchedule 是完整的复习计划。
type RevisionSchedule struct {
	Schedule       []ScheduleDay     `json:"schedule"`
	Priorities     []string          `json:"priorities"`
	StudyMethods   map[string]string `json:"study_methods"`
	TotalStudyTime int               `json:"total_study_time"`
}

// PracticeQuestion 是一道生成的练习题。
type PracticeQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// AnswerFeedback 是对学生作答的批改反馈。
type AnswerFeedback struct {
	IsCorrect          bool     `json:"is_correct"`
	Feedback           string   `json:"feedback"`
	CorrectExplanation string   `json:"correct_explanation"`
	ImprovementHints   []string `json:"improvement_hints"`
}
