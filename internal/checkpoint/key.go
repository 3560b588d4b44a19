package checkpoint

import (
	"fmt"
	"regexp"
	"strconv"

	"lecturebook/internal/contracts"
	"lecturebook/internal/stage"
)

// Key addresses one checkpoint.
type Key struct {
	JobID     string      `json:"job_id"`
	ItemIndex int         `json:"item_index"`
	Stage     stage.Stage `json:"stage"`
}

// ItemKey builds the key of a per-item stage output.
func ItemKey(jobID string, index int, s stage.Stage) Key {
	return Key{JobID: jobID, ItemIndex: index, Stage: s}
}

// JobKey builds the key of a job-level stage output (Compile, Render).
func JobKey(jobID string, s stage.Stage) Key {
	return Key{JobID: jobID, ItemIndex: contracts.JobLevel, Stage: s}
}

func (k Key) String() string {
	if k.ItemIndex == contracts.JobLevel {
		return fmt.Sprintf("%s/job/%s", k.JobID, k.Stage)
	}
	return fmt.Sprintf("%s/item/%d/%s", k.JobID, k.ItemIndex, k.Stage)
}

func (k Key) filename() string {
	if k.ItemIndex == contracts.JobLevel {
		return "job_" + string(k.Stage) + ".json"
	}
	return fmt.Sprintf("item_%03d_%s.json", k.ItemIndex, k.Stage)
}

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

func (k Key) validate() error {
	if !jobIDPattern.MatchString(k.JobID) {
		return fmt.Errorf("invalid job id %q", k.JobID)
	}
	if !k.Stage.Valid() {
		return fmt.Errorf("invalid stage %q", k.Stage)
	}
	if k.Stage.PerItem() && k.ItemIndex < 0 {
		return fmt.Errorf("stage %s requires an item index, got %d", k.Stage, k.ItemIndex)
	}
	if !k.Stage.PerItem() && k.ItemIndex != contracts.JobLevel {
		return fmt.Errorf("stage %s is job level, got item index %d", k.Stage, k.ItemIndex)
	}
	return nil
}

var filenamePattern = regexp.MustCompile(`^(?:item_(\d{3,})|job)_([a-z]+)\.json$`)

func parseFilename(jobID, name string) (Key, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Key{}, false
	}
	key := Key{JobID: jobID, ItemIndex: contracts.JobLevel, Stage: stage.Stage(m[2])}
	if m[1] != "" {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return Key{}, false
		}
		key.ItemIndex = idx
	}
	if key.validate() != nil {
		return Key{}, false
	}
	return key, true
}
