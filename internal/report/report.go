package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/magpie/internal/serp"
	"github.com/FranksOps/magpie/internal/storage"
)

// Dump is the full-data artifact of a run: every extracted record plus the
// AI Overviews collected along the way.
type Dump struct {
	Vendor      string            `json:"vendor"`
	TargetSite  string            `json:"target_site"`
	GeneratedAt time.Time         `json:"generated_at"`
	Records     []*storage.Record `json:"records"`
	Overviews   []*serp.Overview  `json:"overviews,omitempty"`
}

// WriteDump writes the full-data dump as indented JSON.
func WriteDump(w io.Writer, dump Dump) error {
	if dump.Records == nil {
		dump.Records = []*storage.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return nil
}

// Summary contains aggregated metrics about a harvest run.
type Summary struct {
	Vendor           string         `json:"vendor"`
	TargetSite       string         `json:"target_site"`
	QueriesPlanned   int            `json:"queries_planned"`
	SearchCalls      int            `json:"search_calls"`
	QuotaLimited     bool           `json:"quota_limited"`
	ResultsSeen      int            `json:"results_seen"`
	UniqueURLs       int            `json:"unique_urls"`
	RecordsByType    map[string]int `json:"records_by_type"`
	TotalRecords     int            `json:"total_records"`
	OverviewsFound   int            `json:"overviews_found"`
	RateLimitHits    int            `json:"rate_limit_hits"`
	SkippedErrors    int            `json:"skipped_errors"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Duration         time.Duration  `json:"duration"`
	DurationReadable string         `json:"duration_readable"`
}

// Finalize stamps the end time and derives the duration fields.
func (s *Summary) Finalize(end time.Time) {
	s.EndTime = end
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.DurationReadable = s.Duration.Round(time.Millisecond).String()
}

// CountRecords fills the per-type tallies from the collected records.
func (s *Summary) CountRecords(records []*storage.Record) {
	s.RecordsByType = make(map[string]int)
	for _, r := range records {
		s.RecordsByType[string(r.Type)]++
	}
	s.TotalRecords = len(records)
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Magpie Harvest Summary
----------------------
Vendor:        {{.Vendor}}
Target:        {{.TargetSite}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.DurationReadable}}
Search Calls:  {{.SearchCalls}} ({{.QueriesPlanned}} queries planned{{if .QuotaLimited}}, quota limited{{end}})
Results Seen:  {{.ResultsSeen}}
Unique URLs:   {{.UniqueURLs}}
Overviews:     {{.OverviewsFound}}
Rate Limits:   {{.RateLimitHits}}
Skipped:       {{.SkippedErrors}}

Records: {{.TotalRecords}}
{{- range $type, $count := .RecordsByType}}
  {{$type}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Magpie Harvest Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Magpie Harvest Report</h1>
  <p><strong>Vendor:</strong> {{.Vendor}} &middot; <strong>Target:</strong> {{.TargetSite}}</p>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.DurationReadable}})</p>

  <div class="stat-card">
    <div>Search Calls</div>
    <div class="stat-val">{{.SearchCalls}}</div>
  </div>
  <div class="stat-card">
    <div>Unique URLs</div>
    <div class="stat-val">{{.UniqueURLs}}</div>
  </div>
  <div class="stat-card">
    <div>Records</div>
    <div class="stat-val">{{.TotalRecords}}</div>
  </div>
  <div class="stat-card">
    <div>Skipped</div>
    <div class="stat-val" style="color: {{if gt .SkippedErrors 0}}red{{else}}green{{end}};">{{.SkippedErrors}}</div>
  </div>

  <h3>Records By Type</h3>
  <table>
    <tr><th>Type</th><th>Count</th></tr>
    {{- range $type, $count := .RecordsByType}}
    <tr><td>{{$type}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}
