package ecaccess

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/runs"
)

// Status is a batch job state as reported by the gateway.
type Status string

// Job statuses.
const (
	StatusInit    Status = "INIT"
	StatusStandby Status = "STDBY"
	StatusExec    Status = "EXEC"
	StatusWait    Status = "WAIT"
	StatusRetry   Status = "RETR"
	StatusStop    Status = "STOP"
	StatusDone    Status = "DONE"
)

var statusDescriptions = map[Status]string{
	StatusInit:    "Jobs are being initialised",
	StatusStandby: "Jobs are waiting for an event",
	StatusExec:    "Jobs are running",
	StatusWait:    "Jobs have been queued to the scheduler",
	StatusRetry:   "Jobs will be resubmitted",
	StatusStop:    "Jobs have NOT completed (error)",
	StatusDone:    "Jobs have successfully completed",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusDescriptions[s]
	return ok
}

// Description returns the human readable meaning of s.
func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return "unknown status"
}

// Job is one line of the job listing.
type Job struct {
	ID      int    `json:"id"`
	Gateway string `json:"gateway"`
	Status  Status `json:"status"`
	// Run is the scheduler's run number column.
	Run string `json:"run_number"`
	// Submitted is when the job was submitted. The listing omits the year;
	// see ParseJobLine.
	Submitted time.Time `json:"submitted"`
	Queue     string    `json:"queue"`
	Script    string    `json:"script"`
	// SimulationDate is taken from the script name.
	SimulationDate time.Time `json:"simulation_date"`
}

// RunKey is the run key of the outputs this job produces.
func (j *Job) RunKey() string {
	return runs.KeyFor(j.SimulationDate)
}

// OutputFileNames lists the files the job is expected to produce.
func (j *Job) OutputFileNames(schedule *runs.Schedule) []string {
	if schedule == nil {
		schedule = runs.DefaultSchedule()
	}
	return schedule.FileNames(j.RunKey())
}

const (
	jobFields       = 9
	submittedLayout = "Jan 2 15:04"
	scriptDateLen   = 8
)

// ParseJobLine parses one listing line of the form
//
//	id gateway status run month day time queue script
//
// The submission time carries no year: it gets the most recent year in which
// the date exists and is no more than a day after now.
func ParseJobLine(line string, now time.Time) (*Job, error) {
	fields := strings.Fields(line)
	if len(fields) != jobFields {
		return nil, parseErr(line, "expected %d fields, got %d", jobFields, len(fields))
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 0 {
		return nil, parseErr(line, "job id %q is not a number", fields[0])
	}

	status := Status(fields[2])
	if !status.Valid() {
		return nil, parseErr(line, "unknown job status %q", fields[2])
	}

	submitted, err := parseSubmitted(fields[4], fields[5], fields[6], now)
	if err != nil {
		return nil, parseErr(line, "submission time %q: %v", strings.Join(fields[4:7], " "), err)
	}

	simDate, err := parseScriptDate(fields[8])
	if err != nil {
		return nil, parseErr(line, "script name %q: %v", fields[8], err)
	}

	return &Job{
		ID:             id,
		Gateway:        fields[1],
		Status:         status,
		Run:            fields[3],
		Submitted:      submitted,
		Queue:          fields[7],
		Script:         fields[8],
		SimulationDate: simDate,
	}, nil
}

// ParseJobList parses the full listing output. Blank lines are ignored; any
// other malformed line fails the whole listing.
func ParseJobList(output string, now time.Time) ([]*Job, error) {
	var jobs []*Job
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		job, err := ParseJobLine(line, now)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// parseSubmitted picks the most recent year, starting at the year of now,
// in which month and day exist and the time is at most a day ahead of now.
// Feb 29 falls back to the previous leap year.
func parseSubmitted(month, day, clock string, now time.Time) (time.Time, error) {
	// Parsed in year zero, a leap year, so Feb 29 is accepted here.
	md, err := time.Parse(submittedLayout, fmt.Sprintf("%s %s %s", month, day, clock))
	if err != nil {
		return time.Time{}, err
	}

	limit := now.Add(24 * time.Hour)
	for year := now.Year(); year >= now.Year()-8; year-- {
		t := time.Date(year, md.Month(), md.Day(), md.Hour(), md.Minute(), 0, 0, now.Location())
		if t.Month() != md.Month() || t.After(limit) {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("no recent year has %s %s", month, day)
}

// parseScriptDate extracts the date from a script named a_b_YYYYMMDD.ext.
func parseScriptDate(script string) (time.Time, error) {
	parts := strings.Split(script, "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("expected <name>_<name>_<YYYYMMDD>.<ext>")
	}
	datePart, _, ok := strings.Cut(parts[2], ".")
	if !ok || len(datePart) != scriptDateLen {
		return time.Time{}, fmt.Errorf("expected <YYYYMMDD>.<ext> after the last underscore")
	}
	return time.Parse("20060102", datePart)
}

func parseErr(line, format string, args ...any) error {
	return core.Errorf(core.KindParse, "parse job", strings.TrimSpace(line), format, args...)
}
