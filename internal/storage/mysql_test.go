package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestMySQL 连接 MYSQL_TEST_DSN 指向的库，未设置时跳过
// 配置与 NewMySQL 保持一致，唯一索引冲突需要翻译成 gorm.ErrDuplicatedKey
func openTestMySQL(t *testing.T) *MySQL {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN 未设置，跳过存储层集成测试")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
		TranslateError:                           true,
	})
	require.NoError(t, err)
	m := NewMySQLFromDB(db)
	require.NoError(t, m.autoMigrateSchema())
	t.Cleanup(func() {
		m.Close()
	})
	return m
}

func newTestReport(applicationID *string, ownerID string) *models.InterviewReport {
	return &models.InterviewReport{
		ReportID:      uuid.NewString(),
		ApplicationID: applicationID,
		OwnerID:       ownerID,
		JobRole:       "Backend Engineer",
		Transcript: datatypes.JSONSlice[types.Turn]{
			{Speaker: types.SpeakerInterviewer, Text: "介绍一下你自己"},
			{Speaker: types.SpeakerCandidate, Text: "我做了五年后端"},
		},
		Feedback: datatypes.NewJSONType(types.Feedback{}),
		Status:   types.ReportProcessing,
	}
}

func TestListReports_SeparatesPracticeReports(t *testing.T) {
	m := openTestMySQL(t)
	ctx := context.Background()

	owner := "owner-" + uuid.NewString()[:8]
	appID := uuid.NewString()
	otherAppID := uuid.NewString()

	practice := []*models.InterviewReport{newTestReport(nil, owner), newTestReport(nil, owner)}
	linked := []*models.InterviewReport{newTestReport(&appID, owner), newTestReport(&appID, ""), newTestReport(&otherAppID, "")}
	var ids []string
	for _, r := range append(practice, linked...) {
		require.NoError(t, m.CreateReport(ctx, r))
		ids = append(ids, r.ReportID)
	}
	t.Cleanup(func() {
		m.DB().Where("report_id IN ?", ids).Delete(&models.InterviewReport{})
	})

	// 练习报告：只包含没有投递的两条，即使所有者也有关联报告
	reports, total, err := m.ListReports(ctx, ReportFilter{Practice: true, OwnerID: owner}, Page{PageSize: MaxPageSize})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.IsPractice(), r.ReportID)
		assert.Equal(t, owner, r.OwnerID)
	}

	// 按投递过滤
	reports, total, err = m.ListReports(ctx, ReportFilter{ApplicationID: appID}, Page{PageSize: MaxPageSize})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, r := range reports {
		require.NotNil(t, r.ApplicationID)
		assert.Equal(t, appID, *r.ApplicationID)
	}

	// 默认列表不包含任何练习报告
	reports, _, err = m.ListReports(ctx, ReportFilter{}, Page{PageSize: MaxPageSize})
	require.NoError(t, err)
	for _, r := range reports {
		assert.False(t, r.IsPractice(), r.ReportID)
		assert.NotEqual(t, practice[0].ReportID, r.ReportID)
		assert.NotEqual(t, practice[1].ReportID, r.ReportID)
	}
	// 列表视图不返回完整对话
	for _, r := range reports {
		assert.Empty(t, r.Transcript)
	}
}

func TestCreateApplication_ConcurrentDuplicateConflicts(t *testing.T) {
	m := openTestMySQL(t)
	ctx := context.Background()

	jobID := uuid.NewString()
	t.Cleanup(func() {
		m.DB().Where("job_id = ?", jobID).Delete(&models.Application{})
	})

	const attempts = 2
	errs := make([]error, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = m.CreateApplication(ctx, &models.Application{
				ApplicationID:  uuid.NewString(),
				JobID:          jobID,
				CandidateName:  "Ana",
				CandidateEmail: "ana@x.io",
				Status:         types.StatusPending,
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, types.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, conflicts)

	exists, err := m.ApplicationExists(ctx, jobID, "ana@x.io")
	require.NoError(t, err)
	assert.True(t, exists)

	var count int64
	require.NoError(t, m.DB().Model(&models.Application{}).Where("job_id = ?", jobID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCompleteInterview_OnlyFromInterviewing(t *testing.T) {
	m := openTestMySQL(t)
	ctx := context.Background()

	app := &models.Application{
		ApplicationID:  uuid.NewString(),
		JobID:          uuid.NewString(),
		CandidateName:  "Ana",
		CandidateEmail: "ana@x.io",
		Status:         types.StatusSelected,
	}
	require.NoError(t, m.CreateApplication(ctx, app))
	t.Cleanup(func() {
		m.DB().Where("application_id = ?", app.ApplicationID).Delete(&models.Application{})
	})

	changed, err := m.CompleteInterview(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.False(t, changed)
	got, err := m.GetApplication(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSelected, got.Status)

	require.NoError(t, m.UpdateApplicationStatus(ctx, app.ApplicationID, types.StatusInterviewing))
	changed, err = m.CompleteInterview(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = m.CompleteInterview(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.CompleteInterview(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
