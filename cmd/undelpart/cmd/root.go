package cmd

import (
	"io"
	"os"

	"github.com/kisun-bit/undelpart/disk/undelete"
	"github.com/kisun-bit/undelpart/util"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const AppName = "undelpart"

// globalOptions 所有子命令共用的参数.
type globalOptions struct {
	logLevel     string
	logFile      string
	searchRatio  float64
	noMountCheck bool
	json         bool
}

var (
	opts    globalOptions
	stdout  io.Writer = os.Stdout
	session *undelete.Session
	log     *zap.SugaredLogger
	logFile *os.File
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - find and restore deleted partitions",
		Long: "Scans the free space of a partition table for filesystem signatures and\n" +
			"registers the filesystems it finds as partitions again.",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFile, "log-file", "", "also write logs to this file ($VAR and %VAR% are expanded)")
	flags.Float64Var(&opts.searchRatio, "search-ratio", undelete.DefaultSearchRatio,
		"fraction of each free region whose sectors are tried as filesystem starts")
	flags.BoolVar(&opts.noMountCheck, "no-mount-check", false, "allow erasing partitions that are mounted")
	flags.BoolVar(&opts.json, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(
		DefineDisksCommand(),
		DefineListCommand(),
		DefineRescuableCommand(),
		DefineRescueCommand(),
		DefineSetCommand(),
		DefinePlanCommand(),
		DefineTableCommand(),
		DefineServeCommand(),
	)
	return rootCmd
}

func Execute() error {
	return execute(NewRootCommand())
}

func execute(root *cobra.Command) error {
	defer closeLogFile()
	return root.Execute()
}

// closeLogFile 刷新日志并关闭 --log-file 打开的文件, 命令成功与否都会执行.
func closeLogFile() {
	if logFile == nil {
		return
	}
	if log != nil {
		_ = log.Sync()
	}
	_ = logFile.Close()
	logFile = nil
}

func setup(cmd *cobra.Command, _ []string) error {
	level, err := logger.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	writers := []io.Writer{cmd.ErrOrStderr()}
	if path := util.ExpandPath(opts.logFile); path != "" {
		closeLogFile()
		if logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			return errors.Wrapf(err, "open log file %s", path)
		}
		writers = append(writers, logFile)
	}
	log = logger.NewLogger(AppName, level, writers...)
	logger.SetupDefaultLogger(log)

	session = undelete.NewSession(
		undelete.WithLogger(log),
		undelete.WithSearchRatio(opts.searchRatio),
		undelete.WithMountCheck(!opts.noMountCheck),
	)
	stdout = cmd.OutOrStdout()
	return nil
}
