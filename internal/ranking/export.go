package ranking

import (
	"context"
	"fmt"
	"io"
	"time"

	"ai-interview-go/internal/storage/models"

	"github.com/xuri/excelize/v2"
)

const rankingSheet = "Ranking"

// Ranked 返回岗位下所有投递的排名顺序，不修改任何状态
func (e *Engine) Ranked(ctx context.Context, jobID string) ([]models.Application, error) {
	jobID, err := requireJobID("ranking.ranked", jobID)
	if err != nil {
		return nil, err
	}
	apps, err := e.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sortByRank(apps)
	return apps, nil
}

// ExportRanking 把岗位排名写成 xlsx 工作簿
func (e *Engine) ExportRanking(ctx context.Context, jobID string, w io.Writer) error {
	apps, err := e.Ranked(ctx, jobID)
	if err != nil {
		return err
	}
	title := jobID
	if job, ok := e.ResolveJob(ctx, models.UnresolvedJob(jobID)).Job(); ok && job.Title != "" {
		title = job.Title
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rankingSheet); err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("创建表头样式失败: %w", err)
	}

	_ = f.SetCellValue(rankingSheet, "A1", fmt.Sprintf("%s 排名 (%s)", title, time.Now().Format("2006-01-02 15:04")))
	_ = f.MergeCell(rankingSheet, "A1", "G1")

	headers := []string{"排名", "投递ID", "姓名", "邮箱", "状态", "ATS评分", "面试评分"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(rankingSheet, cell, h)
	}
	_ = f.SetCellStyle(rankingSheet, "A2", "G2", headerStyle)
	_ = f.SetColWidth(rankingSheet, "B", "B", 38)
	_ = f.SetColWidth(rankingSheet, "C", "D", 28)
	_ = f.SetColWidth(rankingSheet, "E", "E", 20)

	for i, app := range apps {
		row := i + 3
		interview := ""
		if app.InterviewScore != nil {
			interview = fmt.Sprintf("%.1f", *app.InterviewScore)
		}
		values := []interface{}{i + 1, app.ApplicationID, app.CandidateName, app.CandidateEmail, string(app.Status), app.ATSScore, interview}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(rankingSheet, cell, v); err != nil {
				return fmt.Errorf("写入单元格 %s 失败: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("写出排名文件失败: %w", err)
	}
	return nil
}
