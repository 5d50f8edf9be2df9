package digest

const digestHTMLTemplate = `<html>
<body style="font-family:Arial,sans-serif;">
  <h2>{{.Heading}}</h2>
  {{- if .Greeting}}
  <p>{{.Greeting}}</p>
  {{- end}}
  <p><strong>{{.Count}} {{.Noun}}</strong> ({{.Summary}}).</p>
  {{- range .Groups}}
  <h3>{{.Label}} ({{len .Rows}})</h3>
  <table border="1" cellpadding="6" cellspacing="0" style="border-collapse:collapse; font-size:13px;">
    <tr style="background:#f0f0f0;">
      <th>ID</th><th>Title</th><th>Agency</th><th>Status</th><th>Posted</th><th>Closes</th><th>Link</th>
    </tr>
    {{- range .Rows}}
    <tr>
      <td>{{.ID}}</td>
      <td>{{.Title}}</td>
      <td>{{.Agency}}</td>
      <td>{{.Status}}</td>
      <td>{{.Posted}}</td>
      <td>{{.Closes}}</td>
      <td>{{if .URL}}<a href="{{.URL}}">View</a>{{else}}-{{end}}</td>
    </tr>
    {{- end}}
  </table>
  {{- end}}
  <hr>
  {{- if .Links.Feedback}}
  <p style="margin-top:16px;">
    <a href="{{.Links.Feedback}}" style="background-color:#4285f4;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px;font-size:13px;">Share Feedback</a>
  </p>
  {{- end}}
  <p style="color:#888;font-size:11px;">
    {{- if .Links.Dashboard}}<a href="{{.Links.Dashboard}}" style="color:#888;">Dashboard</a>{{end}}
    {{- if .Links.Repository}} &middot; <a href="{{.Links.Repository}}" style="color:#888;">GitHub</a>{{end}}
    <br>Generated by the RFP scraper
    {{- if .Phrases}}<br>Your keyword domains: {{.Phrases}}, ...{{end}}
  </p>
  {{- if .Unsub}}
  <p style="color:#999;font-size:10px;margin-top:12px;"><a href="{{.Unsub}}" style="color:#999;">Unsubscribe</a></p>
  {{- end}}
</body>
</html>
`
