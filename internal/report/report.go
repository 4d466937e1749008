package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	edgedash "github.com/mowgli42/bookish-train"
	"github.com/mowgli42/bookish-train/toast"
)

const (
	// MaxPackages is how many packages the report lists.
	MaxPackages = 50

	maxJobsPerTransition = 5
	maxPathWidth         = 40
	maxChecksumWidth     = 12
)

// Input is the state a report is rendered from.
type Input struct {
	BaseURL     string
	Status      edgedash.State[edgedash.ComponentStatus]
	Buckets     edgedash.State[[]edgedash.Bucket]
	Packages    edgedash.State[[]edgedash.Package]
	Sources     edgedash.State[[]edgedash.Source]
	Config      edgedash.State[edgedash.RetentionConfig]
	Projections edgedash.State[edgedash.Projection]
	Toasts      []toast.Toast
	Now         time.Time
}

// FromRegistry captures the current state of reg.
func FromRegistry(reg *edgedash.Registry) Input {
	return Input{
		BaseURL:     reg.BaseURL(),
		Status:      reg.Status().State(),
		Buckets:     reg.Buckets().State(),
		Packages:    reg.Packages().State(),
		Sources:     reg.Sources().State(),
		Config:      reg.Config().State(),
		Projections: reg.Projections().State(),
		Toasts:      reg.Toasts().Toasts(),
		Now:         time.Now(),
	}
}

// DemoMode reports whether the catcher runs with second-based retention,
// as flagged by either the config or the status record.
func (in Input) DemoMode() bool {
	return in.Config.Data.DemoMode || in.Status.Data.DemoMode()
}

var (
	borderColor = lipgloss.Color("39")
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func panel(title string, color lipgloss.Color, body string) string {
	content := body
	if title != "" {
		content = titleStyle.Render(title) + "\n" + body
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Render(content)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// Render lays out the full report.
func Render(in Input) string {
	if msg := blockingError(in); msg != "" {
		body := errorStyle.Render("Error: "+msg) + "\n" + edgedash.BaseURLEnv + "=" + in.BaseURL
		return panel("Edge Backup Text UI", lipgloss.Color("9"), body)
	}

	demo := in.DemoMode()
	summary, summaryErr := in.Status.Data.Summary()

	sections := []string{
		panel("Component Status", lipgloss.Color("10"), statusSection(summary, summaryErr, in.Sources.Data)),
		panel("Buckets", borderColor, bucketsSection(in.Buckets.Data)),
		panel("Clients", borderColor, clientsSection(in.Sources.Data, in.Packages.Data, in.Now)),
		panel("Packages", borderColor, packagesSection(in.Packages.Data, demo)),
		panel("Retention Rules", borderColor, rulesSection(in.Config.Data.RuleSets, demo)),
		panel("Projections (upcoming transitions)", borderColor, projectionsSection(in.Projections.Data)),
	}
	if failed := failedResources(in); len(failed) > 0 {
		sections = append(sections, panel("Unavailable", lipgloss.Color("9"), errorStyle.Render(strings.Join(failed, "\n"))))
	}
	if demo {
		sections = append(sections, panel("Mode", lipgloss.Color("8"), dimStyle.Render("Demo mode: retention in seconds")))
	}
	if summary.Components.DeletedCount > 0 {
		sections = append(sections, panel("Deleted", lipgloss.Color("11"),
			warnStyle.Render(fmt.Sprintf("Deleted count: %d", summary.Components.DeletedCount))))
	}
	if len(in.Toasts) > 0 {
		sections = append(sections, panel("Notifications", lipgloss.Color("13"), toastsSection(in.Toasts)))
	}
	sections = append(sections, panel("", lipgloss.Color("8"),
		dimStyle.Render("Updated data is always coming in. Retention deletes the oldest and keeps the latest.")))

	header := titleStyle.Render("Edge Backup Dashboard") + dimStyle.Render("  "+in.BaseURL)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("14")).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, append([]string{header}, sections...)...))
}

// blockingError returns the message of a status or buckets failure. Without
// those two resources the report has nothing meaningful to show.
func blockingError(in Input) string {
	if in.Status.Phase == edgedash.PhaseFailure {
		return in.Status.ErrorMessage()
	}
	if in.Buckets.Phase == edgedash.PhaseFailure {
		return in.Buckets.ErrorMessage()
	}
	return ""
}

func failedResources(in Input) []string {
	var out []string
	add := func(name string, phase edgedash.Phase, msg string) {
		if phase == edgedash.PhaseFailure {
			out = append(out, name+": "+msg)
		}
	}
	add(edgedash.PackagesResource, in.Packages.Phase, in.Packages.ErrorMessage())
	add(edgedash.SourcesResource, in.Sources.Phase, in.Sources.ErrorMessage())
	add(edgedash.ConfigResource, in.Config.Phase, in.Config.ErrorMessage())
	add(edgedash.ProjectionsResource, in.Projections.Phase, in.Projections.ErrorMessage())
	return out
}

func statusSection(s edgedash.StatusSummary, err error, sources []edgedash.Source) string {
	clients := s.Components.Client.Status
	if err != nil || clients == "" {
		clients = placeholder
		if len(sources) > 0 {
			clients = itoa(int64(len(sources)))
		}
	}
	catcher := placeholder
	buckets := placeholder
	if err == nil {
		catcher = itoa(s.Components.Catcher.JobsCount)
		b := s.Components.Buckets
		buckets = fmt.Sprintf("H:%d W:%d C:%d O:%d", b.Hot, b.Warm, b.Cold, b.Offsite)
	}

	rows := [][2]string{{"Clients", clients}, {"Catcher", catcher}, {"Buckets", buckets}}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%-8s", r[0]))+" "+r[1])
	}
	return strings.Join(lines, "\n")
}

func bucketsSection(buckets []edgedash.Bucket) string {
	t := newTable("Tier", "Files", "Storage")
	for _, b := range buckets {
		t.Row(capitalize(b.Name), itoa(b.Count), FormatBytes(b.TotalBytes))
	}
	return t.Render()
}

func clientsSection(sources []edgedash.Source, packages []edgedash.Package, now time.Time) string {
	inProgress := make(map[string]int64)
	for _, p := range packages {
		if p.SourceID != "" && p.Status == "in_progress" {
			inProgress[p.SourceID]++
		}
	}

	t := newTable("Source", "Label", "In Progress", "Last Seen")
	for _, s := range sources {
		label := placeholder
		if s.Label != nil && *s.Label != "" {
			label = *s.Label
		}
		seen := placeholder
		if s.LastSeenAt != nil && *s.LastSeenAt != "" {
			seen = formatTimestamp(*s.LastSeenAt)
			if rel := relative(*s.LastSeenAt, now); rel != "" && !now.IsZero() {
				seen += " (" + rel + ")"
			}
		}
		t.Row(s.SourceID, label, itoa(inProgress[s.SourceID]), seen)
	}
	return t.Render()
}

func packagesSection(packages []edgedash.Package, demo bool) string {
	t := newTable("Path", "Source", "Type", "Bucket", "Status", "Age", "Progress", "Size", "Checksum")
	if len(packages) > MaxPackages {
		packages = packages[:MaxPackages]
	}
	for _, p := range packages {
		age := itoa(p.AgeDays) + "d"
		if demo {
			var secs int64
			if p.AgeSeconds != nil {
				secs = *p.AgeSeconds
			}
			age = itoa(secs) + "s"
		}
		checksum := placeholder
		if p.Checksum != "" {
			checksum = truncate(p.Checksum, maxChecksumWidth)
		}
		bucket := p.Bucket
		if bucket == "" {
			bucket = "hot"
		}
		status := p.Status
		if status == "" {
			status = "pending"
		}
		t.Row(
			truncate(p.Path, maxPathWidth),
			p.SourceID,
			humanType(p.PackageType),
			bucket,
			status,
			age,
			fmt.Sprintf("%d%%", p.ProgressPercent),
			FormatBytes(p.SizeBytes),
			checksum,
		)
	}
	return t.Render()
}

func rulesSection(ruleSets map[string]edgedash.RuleSet, demo bool) string {
	suffix := "d"
	if demo {
		suffix = "s"
	}
	t := newTable("Type",
		"Hot ("+suffix+")", "Warm ("+suffix+")", "Cold ("+suffix+")", "Offsite ("+suffix+")",
		"Replicate", "Cache TTL (s)")

	names := make([]string, 0, len(ruleSets))
	for name := range ruleSets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rs := ruleSets[name]
		hot, warm, cold, offsite := rs.HotDays, rs.WarmDays, rs.ColdDays, rs.OffsiteDays
		if demo {
			hot, warm, cold, offsite = rs.HotSeconds, rs.WarmSeconds, rs.ColdSeconds, rs.OffsiteSeconds
		}
		replicate := "No"
		if rs.ReplicateToAll {
			replicate = "Yes"
		}
		cache := placeholder
		if rs.CacheSeconds != nil && *rs.CacheSeconds != 0 {
			cache = itoa(int64(*rs.CacheSeconds))
		}
		t.Row(humanType(name), itoa(hot), itoa(warm), itoa(cold), itoa(offsite), replicate, cache)
	}
	return t.Render()
}

func projectionsSection(p edgedash.Projection) string {
	t := newTable("From → To", "Count", "Jobs")
	for _, tr := range p.Transitions {
		jobs := make([]string, 0, maxJobsPerTransition)
		for i, j := range tr.Jobs {
			if i == maxJobsPerTransition {
				break
			}
			jobs = append(jobs, fmt.Sprint(j))
		}
		list := strings.Join(jobs, ", ")
		if len(tr.Jobs) > maxJobsPerTransition {
			list += "…"
		}
		t.Row(tr.BucketFrom+" → "+tr.BucketTo, itoa(tr.Count), list)
	}
	return t.Render()
}

func toastsSection(toasts []toast.Toast) string {
	lines := make([]string, 0, len(toasts))
	for _, t := range toasts {
		line := "[" + t.Category.String() + "] " + t.Message
		if t.Category == toast.CategoryError {
			line = errorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
