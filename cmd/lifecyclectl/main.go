package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ai-interview-go/internal/config"
	appLogger "ai-interview-go/internal/logger"
	"ai-interview-go/internal/ranking"
	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/pflag"
)

const usage = `lifecyclectl <command> [flags]

Commands:
  rank       按 ATS 评分重新排名，前 N 名标记为 Approved
  shortlist  把岗位下所有 Pending 投递标记为 Approved
  export     导出岗位排名到 xlsx
  show       打印岗位排名，不修改任何状态
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "config.yaml", "Path to config file")
	jobID := fs.String("job", "", "岗位ID")
	shortlistCount := fs.Int("shortlist", -1, "标记为 Approved 的人数 (rank)")
	out := fs.StringP("out", "o", "", "输出文件 (export)，默认 ranking-<job>.xlsx")
	if err := fs.Parse(os.Args[2:]); err != nil {
		fatal(err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatal(fmt.Errorf("加载配置失败: %w", err))
	}
	closer, err := appLogger.Init(cfg.Logger, "")
	if err != nil {
		fatal(err)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// CLI 只需要数据库和锁，不启动消费者
	mysql, err := storage.NewMySQL(&cfg.MySQL)
	if err != nil {
		fatal(fmt.Errorf("连接MySQL失败: %w", err))
	}
	defer mysql.Close()

	opts := []ranking.Option{ranking.WithLogger(appLogger.Component("lifecyclectl"))}
	if cfg.Redis.Address != "" {
		redis, err := storage.NewRedisAdapter(&cfg.Redis)
		if err != nil {
			fatal(fmt.Errorf("连接Redis失败: %w", err))
		}
		defer redis.Close()
		opts = append(opts, ranking.WithLocker(redis, redis.BulkLockTimeout()), ranking.WithJobCache(redis))
	}
	engine := ranking.NewEngine(mysql, opts...)

	switch cmd {
	case "rank":
		if *shortlistCount < 0 {
			fatal(fmt.Errorf("rank 需要 --shortlist"))
		}
		res, err := engine.BulkRankUpdate(ctx, *jobID, *shortlistCount)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("已通过: %d, 已拒绝: %d\n", res.Approved, res.Rejected)
		err = printRanking(ctx, engine, *jobID)
		if err != nil {
			fatal(err)
		}
	case "shortlist":
		n, err := engine.ShortlistAll(ctx, *jobID)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("已通过: %d\n", n)
	case "export":
		path := *out
		if path == "" {
			path = fmt.Sprintf("ranking-%s.xlsx", *jobID)
		}
		if err := exportRanking(ctx, engine, *jobID, path); err != nil {
			fatal(err)
		}
		fmt.Printf("已导出到 %s\n", path)
	case "show":
		if err := printRanking(ctx, engine, *jobID); err != nil {
			fatal(err)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func exportRanking(ctx context.Context, engine *ranking.Engine, jobID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	if err := engine.ExportRanking(ctx, jobID, f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func printRanking(ctx context.Context, engine *ranking.Engine, jobID string) error {
	apps, err := engine.Ranked(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Println(renderRanking(apps))
	return nil
}

func renderRanking(apps []models.Application) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"排名", "投递ID", "姓名", "邮箱", "状态", "ATS评分", "面试评分"})
	for i, app := range apps {
		interview := "-"
		if app.InterviewScore != nil {
			interview = fmt.Sprintf("%.1f", *app.InterviewScore)
		}
		tw.AppendRow(table.Row{i + 1, app.ApplicationID, app.CandidateName, app.CandidateEmail, string(app.Status), fmt.Sprintf("%.1f", app.ATSScore), interview})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	tw.AppendFooter(table.Row{"", "", "", "", "合计", len(apps), ""})
	return tw.Render()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	os.Exit(1)
}
