package report

const tpl = `
<!DOCTYPE html>
<html>
 <head>
  <meta charset="UTF-8">
  <title>Plan Replayer Report</title>
 </head>
 <body>
  <h1>Plan Replayer Report</h1>
  <h2>Task Information:</h2>
  {{ range .TaskInfoItems }}
  <b>{{ index . 0 }} : </b>{{ index . 1 }}<br>
  {{ end }}
  <h2>Report Summary:</h2>
  <table>
   <tr>
    <th>Result</th>
    <th>Query Count</th>
   </tr>
   <tr>
    <td>Overall</td>
    <td>{{ .Summary.Overall }}</td>
   </tr>
   <tr>
    <td>Passed</td>
    <td>{{ .Summary.Passed }}</td>
   </tr>
   <tr>
    <td>Failed</td>
    <td>{{ .Summary.Failed }}</td>
   </tr>
   <tr>
    <td>Skipped</td>
    <td>{{ .Summary.Skipped }}</td>
   </tr>
  </table>
  <h2>Queries:</h2>
  <table>
   <tr>
    {{ range .Queries.Header }}
    <th>{{ . }}</th>
    {{ end }}
   </tr>
   {{ range .Queries.Data }}
   <tr>
    {{ range . }}
    <td>{{ . }}</td>
    {{ end }}
   </tr>
   {{ end }}
  </table>
  <h2>Failed Queries:</h2>
  {{ range .Details }}
  <h3>{{ .Header }}</h3>
  {{ range .Labels }}
  <b>{{ index . 0 }} : </b>{{ index . 1 }}<br>
  {{ end }}
  {{ if .Source }}
  Captured Plan:<br>
  {{ range .Source.Labels }}
  <b>{{ index . 0 }} : </b>{{ index . 1 }}<br>
  {{ end }}
  <pre>{{ .Source.Text }}</pre>
  {{ end }}
  {{ if .Target }}
  Replayed Plan:<br>
  {{ range .Target.Labels }}
  <b>{{ index . 0 }} : </b>{{ index . 1 }}<br>
  {{ end }}
  <pre>{{ .Target.Text }}</pre>
  {{ end }}
  {{ if .Diff }}
  Diff:<br>
  <pre>{{ .Diff }}</pre>
  {{ end }}
  {{ end }}
 </body>
</html>`
