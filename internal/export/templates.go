package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"statusClass": func(status string) string {
			return "status-" + strings.ToLower(strings.ReplaceAll(status, "_", "-"))
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportTemplateHTML))
}

// RenderReportHTML renders the activity report template.
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ActivityName}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 900px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; margin: 1rem 0; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9em; }
    th { background: #f0f0f0; }
    .status-completed { color: #1a7f37; }
    .status-overdue { color: #b42318; }
    .status-in-progress { color: #b54708; }
    .status-planned { color: #475467; }
  </style>
</head>
<body>
  <h1>{{.ActivityName}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">
    Owner: {{.OwnerName}} |
    {{formatDate .StartDate}} to {{formatDate .EndDate}} ({{.Scale}} scale) |
    Generated {{formatDate .GeneratedAt}}
  </div>
  {{range .Topics}}
  <h2>{{.Title}}</h2>
  {{if .SubTasks}}
  <table>
    <tr><th>Task</th><th>Start</th><th>End</th><th>Status</th><th>Progress</th><th>Assignee</th></tr>
    {{range .SubTasks}}
    <tr>
      <td>{{.Title}}</td>
      <td>{{formatDate .StartDate}}</td>
      <td>{{formatDate .EndDate}}</td>
      <td class="{{statusClass .Status}}">{{.Status}}</td>
      <td>{{.ProgressPercent}}%</td>
      <td>{{if .AssigneeName}}{{.AssigneeName}}{{else}}&mdash;{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}
  <p><em>No tasks yet.</em></p>
  {{end}}
  {{end}}
</body>
</html>`
