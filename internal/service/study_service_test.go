package service

import (
	"context"
	"strings"
	"testing"

	"learn-copilot-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContentRepo 只实现测验结果查询，其余操作为内存写入。
type fakeContentRepo struct {
	uploads     map[string]*model.ContentUpload
	testResults []model.TestResult
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{uploads: make(map[string]*model.ContentUpload)}
}

func (f *fakeContentRepo) CreateUploadRecord(record *model.ContentUpload) error {
	f.uploads[record.UploadID] = record
	return nil
}

func (f *fakeContentRepo) GetUploadRecord(uploadID string) (*model.ContentUpload, error) {
	return f.uploads[uploadID], nil
}

func (f *fakeContentRepo) UpdateUploadRecord(record *model.ContentUpload) error {
	f.uploads[record.UploadID] = record
	return nil
}

func (f *fakeContentRepo) MarkUploadFailed(uploadID string) error {
	if r, ok := f.uploads[uploadID]; ok {
		r.Status = model.UploadStatusFailed
	}
	return nil
}

func (f *fakeContentRepo) ListUploads() ([]model.ContentUpload, error) {
	var out []model.ContentUpload
	for _, r := range f.uploads {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeContentRepo) CreateTestResult(record *model.TestResult) error {
	f.testResults = append(f.testResults, *record)
	return nil
}

func (f *fakeContentRepo) GetTestResult(testID string) (*model.TestResult, error) {
	for i := range f.testResults {
		if f.testResults[i].TestID == testID {
			return &f.testResults[i], nil
		}
	}
	return nil, nil
}

func (f *fakeContentRepo) FindTestResultsByStudent(studentID string) ([]model.TestResult, error) {
	var out []model.TestResult
	for _, r := range f.testResults {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeConvRepo 用内存 map 模拟 Redis 缓存。
type fakeConvRepo struct {
	schedules map[string]*model.RevisionSchedule
	history   map[string][]model.ChatMessage
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		schedules: make(map[string]*model.RevisionSchedule),
		history:   make(map[string][]model.ChatMessage),
	}
}

func (f *fakeConvRepo) GetOrCreateConversationID(_ context.Context, studentID string) (string, error) {
	return "conv-" + studentID, nil
}

func (f *fakeConvRepo) GetConversationHistory(_ context.Context, conversationID string) ([]model.ChatMessage, error) {
	return f.history[conversationID], nil
}

func (f *fakeConvRepo) UpdateConversationHistory(_ context.Context, conversationID string, messages []model.ChatMessage) error {
	f.history[conversationID] = messages
	return nil
}

func (f *fakeConvRepo) CacheSchedule(_ context.Context, studentID string, schedule *model.RevisionSchedule) error {
	f.schedules[studentID] = schedule
	return nil
}

func (f *fakeConvRepo) GetCachedSchedule(_ context.Context, studentID string) (*model.RevisionSchedule, error) {
	return f.schedules[studentID], nil
}

func newStudyFixture(llmStub *stubLLM) (StudyService, *fakeContentRepo, *fakeConvRepo) {
	contentRepo := newFakeContentRepo()
	convRepo := newFakeConvRepo()
	return NewStudyService(contentRepo, convRepo, llmStub), contentRepo, convRepo
}

func TestStudyService_AnalyzeWeakAreas(t *testing.T) {
	llmStub := &stubLLM{reply: `Here you go: [{"topic":"fractions","confidence_score":0.3,"difficulty_level":"beginner","focus_areas":["division"],"study_approach":"Practice daily"}]`}
	svc, _, _ := newStudyFixture(llmStub)

	areas := svc.AnalyzeWeakAreas(context.Background(), &model.ParsedTestReport{Score: 4, Total: 10, Topic: "Math"})
	require.Len(t, areas, 1)
	assert.Equal(t, "fractions", areas[0].Topic)
	assert.Equal(t, "beginner", areas[0].DifficultyLevel)
}

func TestStudyService_AnalyzeWeakAreasFallback(t *testing.T) {
	llmStub := &stubLLM{fail: true}
	svc, _, _ := newStudyFixture(llmStub)

	report := &model.ParsedTestReport{
		Score:           4,
		Total:           10,
		Topic:           "Physics",
		IncorrectTopics: []string{"optics", "waves", "heat", "sound"},
	}
	areas := svc.AnalyzeWeakAreas(context.Background(), report)

	// 得分率低于 0.7 产生一条总体薄弱项，外加前三个错题知识点
	require.Len(t, areas, 4)
	assert.Equal(t, "Physics", areas[0].Topic)
	assert.InDelta(t, 0.4, areas[0].ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"optics", "waves", "heat"}, areas[0].FocusAreas)
	assert.Equal(t, "optics", areas[1].Topic)
	assert.NotContains(t, []string{areas[1].Topic, areas[2].Topic, areas[3].Topic}, "sound")
}

func TestStudyService_GenerateRevisionScheduleFallback(t *testing.T) {
	llmStub := &stubLLM{reply: "I cannot produce JSON today."}
	svc, _, _ := newStudyFixture(llmStub)

	weakAreas := []model.WeakArea{
		{Topic: "geometry", ConfidenceScore: 0.8, DifficultyLevel: "advanced"},
		{Topic: "algebra", ConfidenceScore: 0.2, DifficultyLevel: "beginner"},
	}
	schedule := svc.GenerateRevisionSchedule(context.Background(), weakAreas, 60, 3)

	require.Len(t, schedule.Schedule, 3)
	assert.Equal(t, 180, schedule.TotalStudyTime)
	// 置信度最低的主题排在优先级首位
	assert.Equal(t, "algebra", schedule.Priorities[0])

	for _, day := range schedule.Schedule {
		total := 0
		for _, session := range day.Topics {
			assert.LessOrEqual(t, session.TimeAllocated, 45)
			total += session.TimeAllocated
		}
		assert.Equal(t, 60, total)
	}
	assert.Equal(t, "Read basics and do simple exercises", schedule.StudyMethods["algebra"])
}

func TestStudyService_RevisionScheduleForStudent(t *testing.T) {
	llmStub := &stubLLM{fail: true} // 全程走规则兜底
	svc, contentRepo, convRepo := newStudyFixture(llmStub)
	ctx := context.Background()

	require.NoError(t, contentRepo.CreateTestResult(&model.TestResult{
		TestID:          "t1",
		StudentID:       "s1",
		Subject:         "Math",
		Topic:           "Math",
		Score:           3,
		Total:           10,
		IncorrectTopics: `["fractions","decimals"]`,
	}))

	schedule, err := svc.RevisionScheduleForStudent(ctx, "s1", 60, 7)
	require.NoError(t, err)
	require.Len(t, schedule.Schedule, 7)
	assert.NotNil(t, convRepo.schedules["s1"])

	// 第二次请求命中缓存，不再调用模型
	callsBefore := llmStub.calls
	again, err := svc.RevisionScheduleForStudent(ctx, "s1", 60, 7)
	require.NoError(t, err)
	assert.Equal(t, schedule.TotalStudyTime, again.TotalStudyTime)
	assert.Equal(t, callsBefore, llmStub.calls)
}

func TestStudyService_RevisionScheduleNoResults(t *testing.T) {
	svc, _, _ := newStudyFixture(&stubLLM{})

	_, err := svc.RevisionScheduleForStudent(context.Background(), "unknown", 60, 7)
	assert.Error(t, err)
}

func TestStudyService_GeneratePracticeQuestions(t *testing.T) {
	llmStub := &stubLLM{reply: `[{"question":"What is 2+2?","options":["A. 3","B. 4","C. 5","D. 6"],"answer":"B","explanation":"Basic addition"}]`}
	svc, _, _ := newStudyFixture(llmStub)
	ctx := context.Background()

	questions, err := svc.GeneratePracticeQuestions(ctx, "arithmetic", "beginner", 1)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "B", questions[0].Answer)

	_, err = svc.GeneratePracticeQuestions(ctx, "arithmetic", "beginner", 11)
	assert.Error(t, err)

	llmStub.reply = "no json here"
	questions, err = svc.GeneratePracticeQuestions(ctx, "arithmetic", "beginner", 1)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestStudyService_CheckAnswer(t *testing.T) {
	llmStub := &stubLLM{reply: `{"is_correct":false,"feedback":"Close","correct_explanation":"Velocity has direction","improvement_hints":["revisit vectors"]}`}
	svc, _, _ := newStudyFixture(llmStub)
	ctx := context.Background()

	feedback := svc.CheckAnswer(ctx, "Define velocity", "speed", "speed with direction")
	assert.False(t, feedback.IsCorrect)
	assert.Equal(t, "Close", feedback.Feedback)

	// 模型不可用时退回大小写无关比对
	llmStub.fail = true
	feedback = svc.CheckAnswer(ctx, "Define velocity", "  SPEED WITH DIRECTION ", "speed with direction")
	assert.True(t, feedback.IsCorrect)
	assert.Contains(t, feedback.CorrectExplanation, "speed with direction")
}

func TestStudyService_Summarize(t *testing.T) {
	llmStub := &stubLLM{reply: "  A short summary.  "}
	svc, _, _ := newStudyFixture(llmStub)
	ctx := context.Background()

	summary, err := svc.Summarize(ctx, strings.Repeat("a", 2500), 100)
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", summary)

	// 超长内容截断到前 2000 字符后再进入提示词
	assert.Contains(t, llmStub.lastPrompt, strings.Repeat("a", 2000))
	assert.NotContains(t, llmStub.lastPrompt, strings.Repeat("a", 2001))

	llmStub.fail = true
	_, err = svc.Summarize(ctx, "content", 100)
	assert.Error(t, err)
}
