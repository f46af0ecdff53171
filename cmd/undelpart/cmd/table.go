package cmd

import (
	"fmt"

	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func DefineTableCommand() *cobra.Command {
	var hex bool
	cmd := &cobra.Command{
		Use:   "table <device>",
		Short: "Dump the raw on-disk partition table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := parted.OpenDevice(args[0], parted.WithReadOnly(), parted.WithDeviceLogger(log))
			if err != nil {
				return err
			}
			defer dev.Close()
			out, err := dumpTable(dev, hex)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, out)
			return err
		},
	}
	cmd.Flags().BoolVar(&hex, "hex", false, "hexdump the MBR sector")
	return cmd
}

func dumpTable(dev *parted.Device, hex bool) (string, error) {
	dt, err := table.GetDiskType(dev, dev.SectorSize)
	if err != nil {
		return "", err
	}
	switch dt {
	case table.DTypeMBR:
		mbr, err := table.ReadMBR(dev, 0, dev.SectorSize, false)
		if err != nil {
			return "", err
		}
		if hex {
			return mbr.Hexdump(), nil
		}
		var logicals []table.LogicalPartition
		if ext, ok := mbr.ExtendedEntry(); ok {
			if logicals, err = table.ReadEBRChain(dev, ext, dev.SectorSize); err != nil {
				return "", err
			}
		}
		if opts.json {
			return mbr.JSONFormat(dev.SectorSize, logicals)
		}
		return mbr.DebugFormat(dev.SectorSize, logicals), nil
	case table.DTypeGPT:
		if hex {
			mbr, err := table.ReadMBR(dev, 0, dev.SectorSize, false)
			if err != nil {
				return "", err
			}
			return mbr.Hexdump(), nil
		}
		gpt, err := table.ReadGPTWithBackup(dev, dev.SectorSize, dev.Length)
		if err != nil {
			return "", err
		}
		if opts.json {
			return gpt.JSONFormat()
		}
		return gpt.DebugFormat(), nil
	}
	return "", errors.Errorf("%s has no partition table", dev.Path)
}
