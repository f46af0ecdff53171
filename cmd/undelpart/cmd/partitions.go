package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kisun-bit/undelpart/disk/undelete"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

func DefineDisksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disks",
		Short: "List the disks that can be opened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			disks, err := session.GetDiskList()
			if err != nil {
				return err
			}
			if opts.json {
				o := "[]"
				for _, path := range disks.Keys() {
					if o, err = sjson.Set(o, "-1", path); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintln(stdout, o)
				return err
			}
			t := buildDefaultTable("Disks")
			t.AppendHeader(table.Row{"#", "Path"})
			for i, path := range disks.Keys() {
				t.AppendRow(table.Row{i + 1, path})
			}
			t.Render()
			return nil
		},
	}
}

func DefineListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list <device>",
		Short:   "List the partitions registered in the partition table",
		Args:    cobra.ExactArgs(1),
		Example: AppName + " list /dev/sdb",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := session.GetPartitionList(args[0])
			if err != nil {
				return err
			}
			return printDescriptors("Partitions of "+args[0], args[0], ds)
		},
	}
}

func DefineRescuableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rescuable <device>",
		Short: "Search the free regions for deleted partitions without changing the disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := session.GetRescuable(args[0])
			if err != nil {
				return err
			}
			return printDescriptors("Rescuable partitions of "+args[0], args[0], ds)
		},
	}
}

func DefineRescueCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rescue <device> [descriptors]",
		Short: "Register deleted partitions found in the given regions",
		Long: "Descriptors are a JSON list [[number, start, end], ...] in sectors, '-' to read\n" +
			"them from stdin or '@file' to read them from a file. Partition numbers are ignored.\n" +
			"With --all every partition reported by 'rescuable' is registered.",
		Example: AppName + " rescue /dev/sdb '[[-1, 8192, 20479]]'\n" +
			AppName + " rescue --all /dev/sdb",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ds, err := rescueCandidates(path, args[1:], all)
			if err != nil {
				return err
			}
			rescued, err := session.Rescue(path, ds)
			if rescued == nil {
				return err
			}
			if perr := printDescriptors("Rescued partitions of "+path, path, rescued); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "rescue every partition reported by 'rescuable'")
	return cmd
}

func DefineSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <device> <descriptors>",
		Short: "Make the partition table match the given list",
		Long: "Partitions whose number is not listed are erased. Listed descriptors with an\n" +
			"unknown number are rescued from the given region. Nothing is written unless\n" +
			"every step succeeds.",
		Example: AppName + " set /dev/sdb '[[1, 2048, 8191], [-1, 8192, 20479]]'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			desired, err := readDescriptors(args[1])
			if err != nil {
				return err
			}
			if _, err = session.SetPartitionList(args[0], desired); err != nil {
				return err
			}
			ds, err := session.GetPartitionList(args[0])
			if err != nil {
				return err
			}
			return printDescriptors("Partitions of "+args[0], args[0], ds)
		},
	}
}

func DefinePlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <device> <descriptors>",
		Short: "Show what 'set' would change without touching the disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			desired, err := readDescriptors(args[1])
			if err != nil {
				return err
			}
			plan, err := session.PlanPartitionList(args[0], desired)
			if err != nil {
				return err
			}
			return printPlan(args[0], plan)
		},
	}
}

func rescueCandidates(path string, rest []string, all bool) ([]undelete.Descriptor, error) {
	switch {
	case all && len(rest) > 0:
		return nil, errors.New("--all cannot be combined with descriptors")
	case all:
		return session.GetRescuable(path)
	case len(rest) == 0:
		return nil, errors.New("descriptors or --all required")
	}
	return readDescriptors(rest[0])
}
