package stage

// CanTransition reports whether moving from one state to another is legal.
//
// Legal edges are the single forward steps of the pipeline, Render to Done,
// and any pipeline stage to Failed. Failed and Done are terminal. Re-entering
// an arbitrary stage is only possible through Resume.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if !from.Valid() {
		return false
	}
	if to == Failed {
		return true
	}
	return from.Next() == to
}

// ResumeEntry describes how an item re-enters the pipeline at a stage.
type ResumeEntry struct {
	// Stage is where execution resumes.
	Stage Stage
	// Requires is the stage whose checkpoint must exist and validate. Empty
	// when resuming from Download.
	Requires Stage
}

// Resume returns the explicit resume edge into target. Download needs no
// prior checkpoint; every other stage requires the checkpoint of the stage
// immediately before it.
func Resume(target Stage) (ResumeEntry, bool) {
	if !target.Valid() {
		return ResumeEntry{}, false
	}
	prev, ok := target.Previous()
	if !ok {
		return ResumeEntry{Stage: target}, true
	}
	return ResumeEntry{Stage: target, Requires: prev}, true
}
