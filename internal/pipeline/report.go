package pipeline

import (
	"time"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
)

// Stage names a step of a run. Used in failures, logs and metrics.
type Stage string

const (
	StageLedger  Stage = "ledger"
	StageIngest  Stage = "ingest"
	StageDHW     Stage = "dhw"
	StageMonthly Stage = "monthly"
	StagePublish Stage = "publish"
)

// Failure is one unit of work that could not be completed. Siblings of a
// failed unit are unaffected.
type Failure struct {
	Stage Stage
	Key   string
	Err   error
}

// Report describes the outcome of a single run.
type Report struct {
	RunID      string
	Range      ledger.Range
	StartedAt  time.Time
	FinishedAt time.Time

	Missing  []domain.Date
	Ingested []domain.Date
	// Skipped holds dates whose download directory was empty.
	Skipped []domain.Date

	DHWWritten []domain.Date
	// DHWError is set when the DHW stage could not run at all (baseline
	// missing or misaligned). Ingestion results are still valid.
	DHWError error

	Months map[domain.Kind]int

	// Policies records the idempotence policy each output stage ran under.
	// Stages that did not run are absent.
	Policies map[Stage]Policy

	Failures []Failure
	Events   []domain.RecordEvent
}

func (r *Report) fail(stage Stage, key string, err error) {
	r.Failures = append(r.Failures, Failure{Stage: stage, Key: key, Err: err})
}

// Summary is the JSON view of a Report served on /status.
type Summary struct {
	RunID      string            `json:"run_id"`
	Start      string            `json:"start"`
	End        string            `json:"end"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Missing    int               `json:"missing"`
	Ingested   int               `json:"ingested"`
	Skipped    int               `json:"skipped"`
	DHWWritten int               `json:"dhw_written"`
	DHWError   string            `json:"dhw_error,omitempty"`
	MonthsSST  int               `json:"months_sst"`
	MonthsDHW  int               `json:"months_dhw"`
	Policies   map[string]string `json:"policies,omitempty"`
	Failures   []string          `json:"failures,omitempty"`
}

// Summary flattens r for display.
func (r *Report) Summary() Summary {
	s := Summary{
		RunID:      r.RunID,
		Start:      r.Range.Start.String(),
		End:        r.Range.End.String(),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Missing:    len(r.Missing),
		Ingested:   len(r.Ingested),
		Skipped:    len(r.Skipped),
		DHWWritten: len(r.DHWWritten),
		MonthsSST:  r.Months[domain.KindSST],
		MonthsDHW:  r.Months[domain.KindDHW],
	}
	if r.DHWError != nil {
		s.DHWError = r.DHWError.Error()
	}
	if len(r.Policies) > 0 {
		s.Policies = make(map[string]string, len(r.Policies))
		for stage, p := range r.Policies {
			s.Policies[string(stage)] = p.String()
		}
	}
	for _, f := range r.Failures {
		s.Failures = append(s.Failures, string(f.Stage)+" "+f.Key+": "+f.Err.Error())
	}
	return s
}
