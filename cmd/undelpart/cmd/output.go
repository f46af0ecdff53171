package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kisun-bit/undelpart/disk/undelete"
	"github.com/tidwall/sjson"
)

func buildDefaultTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(stdout)
	t.Style().Format.Header = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func numberColumn(n int) string {
	if n == undelete.Unassigned {
		return "-"
	}
	return fmt.Sprint(n)
}

// printDescriptors 以表格或JSON输出描述符列表.
func printDescriptors(title, path string, ds []undelete.Descriptor) error {
	if opts.json {
		o, err := undelete.FormatDescriptors(ds)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, o)
		return err
	}
	ss := session.SectorSize(path)
	t := buildDefaultTable(title)
	t.AppendHeader(table.Row{"#", "Start", "End", "Sectors", "Size"})
	for _, d := range ds {
		sectors := d.End - d.Start + 1
		t.AppendRow(table.Row{numberColumn(d.Number), d.Start, d.End, sectors, humanize.IBytes(uint64(sectors * ss))})
	}
	if len(ds) == 0 {
		t.AppendFooter(table.Row{"", "", "", "", "none"})
	}
	t.Render()
	return nil
}

func printPlan(path string, plan *undelete.Plan) error {
	if opts.json {
		o := "{}"
		for _, set := range []struct {
			key string
			ds  []undelete.Descriptor
		}{{"keep", plan.Keep}, {"erase", plan.Erase}, {"add", plan.Add}} {
			raw, err := undelete.FormatDescriptors(set.ds)
			if err != nil {
				return err
			}
			if o, err = sjson.SetRaw(o, set.key, raw); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(stdout, o)
		return err
	}
	ss := session.SectorSize(path)
	t := buildDefaultTable("Plan for " + path)
	t.AppendHeader(table.Row{"Action", "#", "Start", "End", "Size"})
	for _, set := range []struct {
		action string
		ds     []undelete.Descriptor
	}{{"keep", plan.Keep}, {"erase", plan.Erase}, {"add", plan.Add}} {
		for _, d := range set.ds {
			t.AppendRow(table.Row{set.action, numberColumn(d.Number), d.Start, d.End,
				humanize.IBytes(uint64((d.End - d.Start + 1) * ss))})
		}
	}
	t.Render()
	if plan.Empty() {
		_, _ = fmt.Fprintln(stdout, "partition table already matches, nothing to do")
	}
	return nil
}

// readDescriptors 读取描述符参数, "-" 表示从标准输入读取, "@file" 表示从文件读取.
func readDescriptors(arg string) ([]undelete.Descriptor, error) {
	data := []byte(arg)
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(os.Stdin)
	case len(arg) > 1 && arg[0] == '@':
		data, err = os.ReadFile(arg[1:])
	}
	if err != nil {
		return nil, err
	}
	return undelete.ParseDescriptors(data)
}
