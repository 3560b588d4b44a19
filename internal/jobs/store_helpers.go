package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const jobColumns = "id, parent_job_id, status, title, speaker, items_json, options_json, resume_from, current_stage, progress_percent, cancel_requested, error_code, error_message, output_path, created_at, updated_at, started_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		parentID        sql.NullString
		statusStr       string
		title           sql.NullString
		speaker         sql.NullString
		itemsJSON       string
		optionsJSON     string
		resumeFrom      sql.NullString
		currentStage    sql.NullString
		cancelRequested int
		errorCode       sql.NullString
		errorMessage    sql.NullString
		outputPath      sql.NullString
		createdRaw      string
		updatedRaw      string
		startedRaw      sql.NullString
		finishedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&parentID,
		&statusStr,
		&title,
		&speaker,
		&itemsJSON,
		&optionsJSON,
		&resumeFrom,
		&currentStage,
		&job.ProgressPercent,
		&cancelRequested,
		&errorCode,
		&errorMessage,
		&outputPath,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &job.Items); err != nil {
		return nil, fmt.Errorf("decode items of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(optionsJSON), &job.Options); err != nil {
		return nil, fmt.Errorf("decode options of job %s: %w", job.ID, err)
	}
	job.ParentJobID = parentID.String
	job.Status = Status(statusStr)
	job.Title = title.String
	job.Speaker = speaker.String
	job.ResumeFrom = stage.Stage(resumeFrom.String)
	job.CurrentStage = stage.Stage(currentStage.String)
	job.CancelRequested = cancelRequested != 0
	job.ErrorCode = services.CauseCode(errorCode.String)
	job.ErrorMessage = errorMessage.String
	job.OutputPath = outputPath.String
	job.CreatedAt, _ = parseTimeString(createdRaw)
	job.UpdatedAt, _ = parseTimeString(updatedRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	return &job, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (ItemProgress, error) {
	var (
		item         ItemProgress
		stageStr     sql.NullString
		failedStage  sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(&item.JobID, &item.Index, &item.Source, &stageStr, &failedStage, &errorCode, &errorMessage, &updatedRaw); err != nil {
		return ItemProgress{}, err
	}
	item.Stage = stage.Stage(stageStr.String)
	item.FailedStage = stage.Stage(failedStage.String)
	item.ErrorCode = services.CauseCode(errorCode.String)
	item.ErrorMessage = errorMessage.String
	item.UpdatedAt, _ = parseTimeString(updatedRaw)
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func notFound(jobID string) error {
	return services.Wrap(services.ErrNotFound, "jobs", "lookup", "job "+jobID, nil)
}
