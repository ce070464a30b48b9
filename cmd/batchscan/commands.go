package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/batchscanner/addone/interact"
	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/internal/database"
	"github.com/sshcollectorpro/batchscanner/internal/service"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
)

type scanFlags struct {
	configPath   string
	targetsFile  string
	username     string
	password     string
	families     []string
	noSubs       bool
	concurrency  int
	batchSize    int
	logTail      int
	verbose      bool
	persist      bool
	exportDir    string
	noRaw        bool
	logLevel     string
	targetsStdin io.Reader
}

func (f *scanFlags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (default: configs/config.yaml when present)")
	pf.StringVarP(&f.targetsFile, "targets", "t", "", "targets file, one address, network or range per line (- for stdin)")
	pf.StringVarP(&f.username, "username", "u", "", "login user for targets without a username= line")
	pf.StringVarP(&f.password, "password", "p", "", "login password for targets without a password= line")
	pf.StringSliceVar(&f.families, "families", nil, "device families to act on (EH,BU,TU,TG)")
	pf.BoolVar(&f.noSubs, "no-subordinates", false, "do not tunnel into subordinate devices")
	pf.IntVar(&f.concurrency, "concurrency", 0, "devices scanned in parallel")
	pf.IntVar(&f.batchSize, "batch-size", 0, "targets per batch")
	pf.IntVar(&f.logTail, "log-tail", 0, "log lines kept per device")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "print every parsed document")
	pf.BoolVar(&f.persist, "db", false, "record the task in the sqlite database")
	pf.StringVar(&f.exportDir, "export-dir", "", "CSV output directory")
	pf.BoolVar(&f.noRaw, "no-raw", false, "do not save raw command output")
	pf.StringVar(&f.logLevel, "log-level", "", "log level override")
}

// setup 加载配置、初始化日志，并按命令行参数覆盖
func (f *scanFlags) setup() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	} else if !f.verbose {
		cfg.Log.Level = "warn"
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, err
	}
	if f.exportDir != "" {
		cfg.Export.Dir = f.exportDir
	}
	if f.persist {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (f *scanFlags) targets() ([]service.Target, error) {
	var r io.Reader
	switch f.targetsFile {
	case "":
		return nil, errors.New("--targets is required")
	case "-":
		r = f.targetsStdin
		if r == nil {
			r = os.Stdin
		}
	default:
		file, err := os.Open(f.targetsFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	return loadTargets(r, f.username, f.password)
}

// loadTargets 读取目标清单；命令行凭据作为清单开头的默认凭据
func loadTargets(r io.Reader, username, password string) ([]service.Target, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	if username != "" {
		fmt.Fprintf(&b, "username=%s\n", username)
	}
	if password != "" {
		fmt.Fprintf(&b, "password=%s\n", password)
	}
	offset := strings.Count(b.String(), "\n")
	b.Write(body)

	targets, skipped := service.ParseTargets(b.String())
	for _, s := range skipped {
		logger.Warn("Target line skipped", "line", s.Line-offset, "text", s.Text, "reason", s.Reason)
	}
	if len(targets) == 0 {
		return nil, errors.New("no valid targets")
	}
	return targets, nil
}

// readScript 读取脚本文件，去除空行与注释
func readScript(path string) ([]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := interact.CleanScript(strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n"))
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: no commands", path)
	}
	return lines, nil
}

// run 构造请求、执行并输出汇总
func (f *scanFlags) run(cmd *cobra.Command, action string, mutate func(*service.ScanRequest) error) error {
	cfg, err := f.setup()
	if err != nil {
		return err
	}
	if f.persist {
		defer database.Close()
	}
	targets, err := f.targets()
	if err != nil {
		return err
	}

	svc := service.NewBatchService(cfg)
	req := svc.NewRequest(targets)
	req.Action = action
	if len(f.families) > 0 {
		req.Families = f.families
	}
	if f.noSubs {
		req.IncludeSubordinates = false
	}
	if f.noRaw {
		req.SaveRaw = false
	}
	if f.concurrency > 0 {
		req.Concurrency = f.concurrency
	}
	if f.batchSize > 0 {
		req.BatchSize = f.batchSize
	}
	if f.logTail > 0 {
		req.LogTail = f.logTail
	}
	if mutate != nil {
		if err := mutate(&req); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	var rows []service.ReportRow
	req.OnRecord = func(r service.Record) {
		mu.Lock()
		defer mu.Unlock()
		rows = append(rows, r.Rows...)
		if f.verbose {
			for _, d := range r.Documents {
				_ = service.RenderDocument(out, d)
				fmt.Fprintln(out)
			}
		}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	report, err := svc.Run(ctx, req)
	if report == nil {
		return err
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Address < rows[j].Address })
	if err := service.RenderReport(out, rows); err != nil {
		return err
	}
	fmt.Fprintf(out, "\ntask %s %s: %d targets, %d connected, %d unreachable, %d documents, %d/%d commands failed in %s\n",
		report.TaskID, report.Status, report.Total, report.Connected, report.Unreachable, report.Documents,
		report.FailedCommands, report.Commands, report.Duration.Round(1e6))
	for _, file := range report.Files {
		fmt.Fprintln(out, "  "+file)
	}
	return err
}

func newActionCmd(flags *scanFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, action, nil)
		},
	}
}

func newSetTimeCmd(flags *scanFlags) *cobra.Command {
	var shift float64
	cmd := &cobra.Command{
		Use:   "set-time",
		Short: "Set the device clock to local time plus --shift hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, service.ActionSetTime, func(r *service.ScanRequest) error {
				if cmd.Flags().Changed("shift") {
					r.TimeShift = shift
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&shift, "shift", 0, "hours added to local time (may be fractional or negative)")
	return cmd
}

func newScriptCmd(flags *scanFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Send every line of a script file to each device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, service.ActionScript, func(r *service.ScanRequest) error {
				path := file
				if path == "" {
					path = config.Get().Scan.Script
				}
				if path == "" {
					return errors.New("script file is required (--file or scan.script)")
				}
				lines, err := readScript(path)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				r.Script = lines
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "script file (default: scan.script from the config)")
	return cmd
}
