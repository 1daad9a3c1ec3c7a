package cli

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"dsget/pkg/archive"
	"dsget/pkg/config"
	"dsget/pkg/disk"
	"dsget/pkg/display"
	"dsget/pkg/disposition"
	"dsget/pkg/download"

	"github.com/dustin/go-humanize"
)

// errReported marks failures the user has already been notified about.
var errReported = errors.New("already reported")

type getParams struct {
	Path    string
	Name    string
	Extract bool
}

type getAllParams struct {
	Paths    []string
	Parallel int
}

type historyParams struct {
	Limit int
	Clear bool
}

type diskCleanParams struct {
	OlderThan time.Duration
}

// fallbackName derives a file name from the last element of a resource
// path, e.g. "/datasets/1/report.csv" gives "report.csv".
func fallbackName(resourcePath string) string {
	base := path.Base(strings.TrimRight(resourcePath, "/"))
	if name := disposition.Sanitize(base); name != "" {
		return name
	}
	return disposition.DefaultName
}

func runGet(ctx context.Context, m *Managers, params *getParams) (*ExecutionResult, error) {
	name := params.Name
	if name == "" {
		name = fallbackName(params.Path)
	}
	res, err := m.Files.Download(ctx, params.Path, name)
	if err != nil {
		return &ExecutionResult{ExitCode: 1}, fmt.Errorf("%w: %w", errReported, err)
	}
	m.Disp.Print(res.Path)

	if params.Extract {
		if !archive.IsSupported(res.Path) {
			m.Disp.Print(m.Theme.Styled(m.Theme.Dim, fmt.Sprintf("%s is not an archive, nothing to extract", res.Filename)))
			return &ExecutionResult{ExitCode: 0}, nil
		}
		dir, err := archive.ExtractBeside(res.Path)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", res.Filename, err)
		}
		m.Disp.Print(fmt.Sprintf("%s %s %s", m.Theme.IconFile, m.Theme.Arrow, dir))
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func runGetAll(ctx context.Context, m *Managers, params *getAllParams) (*ExecutionResult, error) {
	reqs := make([]download.Request, 0, len(params.Paths))
	for _, p := range params.Paths {
		reqs = append(reqs, download.Request{ResourcePath: p, FallbackName: fallbackName(p)})
	}

	results, err := m.Files.DownloadAll(ctx, reqs, params.Parallel)
	saved := 0
	for _, res := range results {
		if res != nil {
			m.Disp.Print(res.Path)
			saved++
		}
	}
	if err != nil {
		m.Disp.Print(m.Theme.Styled(m.Theme.Red, fmt.Sprintf("%d of %d downloads failed", len(reqs)-saved, len(reqs))))
		return &ExecutionResult{ExitCode: 1}, fmt.Errorf("%w: %w", errReported, err)
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func runOpen(ctx context.Context, m *Managers, resourcePath string) (*ExecutionResult, error) {
	m.Files.DownloadByLink(resourcePath)
	m.Disp.Print(fmt.Sprintf("%s %s %s", m.Theme.IconWorld, m.Theme.Arrow, m.SysCfg.ResolveURL(resourcePath)))
	return &ExecutionResult{ExitCode: 0}, nil
}

func runHistory(ctx context.Context, m *Managers, params *historyParams) (*ExecutionResult, error) {
	if params.Clear {
		if err := m.History.Clear(ctx); err != nil {
			return nil, err
		}
		m.Disp.Print("History cleared")
		return &ExecutionResult{ExitCode: 0}, nil
	}

	entries, err := m.History.List(params.Limit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		m.Disp.Print(m.Theme.Styled(m.Theme.Dim, "No downloads yet"))
		return &ExecutionResult{ExitCode: 0}, nil
	}

	table := &display.Table{Header: []string{"When", "File", "Size", "Resource"}}
	for _, e := range entries {
		table.Rows = append(table.Rows, []string{
			humanize.Time(e.Time),
			e.Filename,
			humanize.Bytes(uint64(e.Size)),
			e.ResourcePath,
		})
	}
	display.PrintTable(m.Disp, table)
	return &ExecutionResult{ExitCode: 0}, nil
}

func runDiskInfo(ctx context.Context, m *Managers) (*ExecutionResult, error) {
	stats, total := m.DiskMgr.Info()
	table := &display.Table{Header: []string{"Type", "Size", "Items", "Path"}}
	for _, s := range stats {
		table.Rows = append(table.Rows, []string{s.Label, disk.FormatSize(s.Size), fmt.Sprintf("%d", s.Items), s.Path})
	}
	display.PrintTable(m.Disp, table)
	m.Disp.Print(fmt.Sprintf("%s Total: %s", m.Theme.IconDisk, disk.FormatSize(total)))
	return &ExecutionResult{ExitCode: 0}, nil
}

func runDiskClean(ctx context.Context, m *Managers, params *diskCleanParams) (*ExecutionResult, error) {
	removed, freed, err := m.DiskMgr.Clean(params.OlderThan)
	for _, p := range removed {
		m.Disp.Log(fmt.Sprintf("Removed %s", p))
	}
	m.Disp.Print(fmt.Sprintf("Clean complete: %d files, %s freed", len(removed), disk.FormatSize(freed)))
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func runConfig(ctx context.Context, m *Managers) (*ExecutionResult, error) {
	c := m.SysCfg
	token := "(not set)"
	if c.GetToken() != "" {
		token = "(set)"
	}
	table := &display.Table{
		Header: []string{"Setting", "Value"},
		Rows: [][]string{
			{config.EnvBaseURL, c.GetBaseURL()},
			{config.EnvAPIPrefix, c.GetAPIPrefix()},
			{config.EnvAPIToken, token},
			{config.EnvDownloadDir, c.GetDownloadDir()},
			{config.EnvInactivityTimeout, c.GetInactivityTimeout().String()},
			{"Config dir", c.GetConfigDir()},
			{"Staging dir", c.GetStagingDir()},
			{"History file", c.GetHistoryFile()},
		},
	}
	display.PrintTable(m.Disp, table)
	return &ExecutionResult{ExitCode: 0}, nil
}

func runVersion(ctx context.Context, m *Managers) (*ExecutionResult, error) {
	m.Disp.Print(config.GetBuildInfo())
	return &ExecutionResult{ExitCode: 0}, nil
}
