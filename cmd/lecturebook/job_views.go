package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lecturebook/internal/contracts"
	"lecturebook/internal/jobs"
	"lecturebook/internal/stage"
)

const displayTimeLayout = "2006-01-02 15:04"

// jobView is the JSON shape of a job for --json output.
type jobView struct {
	ID              string     `json:"id"`
	ParentJobID     string     `json:"parent_job_id,omitempty"`
	Status          string     `json:"status"`
	Title           string     `json:"title,omitempty"`
	Speaker         string     `json:"speaker,omitempty"`
	Sources         []string   `json:"sources"`
	ResumeFrom      string     `json:"resume_from,omitempty"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`
	ErrorCode       string     `json:"error_code,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	OutputPath      string     `json:"output_path,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

type itemView struct {
	Index        int    `json:"index"`
	Source       string `json:"source"`
	Stage        string `json:"stage,omitempty"`
	FailedStage  string `json:"failed_stage,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type logView struct {
	Time    time.Time `json:"time"`
	Item    *int      `json:"item,omitempty"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Percent float64   `json:"percent"`
}

type snapshotJSON struct {
	Job   jobView    `json:"job"`
	Items []itemView `json:"items"`
	Log   []logView  `json:"log"`
}

func newJobView(job *jobs.Job) jobView {
	sources := make([]string, 0, len(job.Items))
	for _, item := range job.Items {
		sources = append(sources, item.Source)
	}
	return jobView{
		ID:              job.ID,
		ParentJobID:     job.ParentJobID,
		Status:          string(job.Status),
		Title:           job.Title,
		Speaker:         job.Speaker,
		Sources:         sources,
		ResumeFrom:      string(job.ResumeFrom),
		CurrentStage:    string(job.CurrentStage),
		ProgressPercent: job.ProgressPercent,
		ErrorCode:       string(job.ErrorCode),
		ErrorMessage:    job.ErrorMessage,
		OutputPath:      job.OutputPath,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
}

func snapshotView(s *jobs.Snapshot) snapshotJSON {
	out := snapshotJSON{Job: newJobView(s.Job), Items: []itemView{}, Log: []logView{}}
	for _, it := range s.Items {
		out.Items = append(out.Items, itemView{
			Index:        it.Index,
			Source:       it.Source,
			Stage:        string(it.Stage),
			FailedStage:  string(it.FailedStage),
			ErrorCode:    string(it.ErrorCode),
			ErrorMessage: it.ErrorMessage,
		})
	}
	for _, ev := range s.Log {
		entry := logView{Time: ev.CreatedAt, Stage: string(ev.Stage), Message: ev.Message, Percent: ev.Percent}
		if ev.Item != contracts.JobLevel {
			item := ev.Item
			entry.Item = &item
		}
		out.Log = append(out.Log, entry)
	}
	return out
}

func buildJobListRows(list []*jobs.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			jobTitle(job),
			formatStatusLabel(string(job.Status)),
			fmt.Sprintf("%d", len(job.Items)),
			fmt.Sprintf("%.0f%%", job.ProgressPercent),
			job.CreatedAt.Local().Format(displayTimeLayout),
		})
	}
	return rows
}

func buildStatsRows(stats map[jobs.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range jobs.AllStatuses() {
		if count := stats[status]; count > 0 {
			rows = append(rows, []string{formatStatusLabel(string(status)), fmt.Sprintf("%d", count)})
		}
	}
	return rows
}

// renderSnapshot formats a job, its items, and its recent log for humans.
func renderSnapshot(s *jobs.Snapshot) string {
	job := s.Job
	var b strings.Builder
	fmt.Fprintf(&b, "Job:      %s\n", job.ID)
	fmt.Fprintf(&b, "Title:    %s\n", jobTitle(job))
	if job.Speaker != "" {
		fmt.Fprintf(&b, "Speaker:  %s\n", job.Speaker)
	}
	status := formatStatusLabel(string(job.Status))
	if job.Status == jobs.StatusRunning && job.CurrentStage != "" {
		status = fmt.Sprintf("%s (%s, %.0f%%)", status, job.CurrentStage.Label(), job.ProgressPercent)
	}
	fmt.Fprintf(&b, "Status:   %s\n", status)
	if job.ParentJobID != "" {
		fmt.Fprintf(&b, "Retry of: %s (from %s)\n", job.ParentJobID, resumeLabel(job.ResumeFrom))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:    %s (%s)\n", job.ErrorMessage, job.ErrorCode)
	}
	if job.OutputPath != "" {
		fmt.Fprintf(&b, "Output:   %s\n", job.OutputPath)
	}

	if len(s.Items) > 0 {
		rows := make([][]string, 0, len(s.Items))
		for _, it := range s.Items {
			rows = append(rows, []string{
				fmt.Sprintf("%d", it.Index+1),
				shortSource(it.Source),
				itemStageLabel(it),
				it.ErrorMessage,
			})
		}
		b.WriteString(renderTable([]string{"#", "Source", "Stage", "Error"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
		b.WriteString("\n")
	}

	if len(s.Log) > 0 {
		b.WriteString("Recent progress:\n")
		for _, ev := range s.Log {
			scope := "job"
			if ev.Item != contracts.JobLevel {
				scope = fmt.Sprintf("item %d", ev.Item+1)
			}
			fmt.Fprintf(&b, "  %s  [%3.0f%%] %-8s %s\n", ev.CreatedAt.Local().Format("15:04:05"), ev.Percent, scope, ev.Message)
		}
	}
	return b.String()
}

func itemStageLabel(it jobs.ItemProgress) string {
	if it.Failed() {
		return fmt.Sprintf("Failed at %s", it.FailedStage.Label())
	}
	if it.Stage == "" {
		return "Pending"
	}
	return it.Stage.Label()
}

func resumeLabel(s stage.Stage) string {
	if s == "" {
		return "the start"
	}
	return s.Label()
}

func jobTitle(job *jobs.Job) string {
	if title := strings.TrimSpace(job.Title); title != "" {
		return title
	}
	if len(job.Items) == 1 {
		return shortSource(job.Items[0].Source)
	}
	if len(job.Items) > 1 {
		return fmt.Sprintf("%s (+%d more)", shortSource(job.Items[0].Source), len(job.Items)-1)
	}
	return "Untitled"
}

func shortSource(source string) string {
	source = strings.TrimSpace(source)
	if strings.HasPrefix(source, "/") {
		return filepath.Base(source)
	}
	if len(source) > 60 {
		return source[:57] + "..."
	}
	return source
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
