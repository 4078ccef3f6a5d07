package leaderboard

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

var page = template.Must(template.New("leaderboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}
table{width:100%;border-collapse:collapse}
th{cursor:pointer;text-align:left;padding:.5rem;border-bottom:2px solid #ccc}
td{padding:.5rem;border-bottom:1px solid #eee}
th.num,td.num{text-align:right}
tr.baseline{color:#888}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table id="leaderboard">
<thead><tr><th data-key="system">System</th><th data-key="accuracy" class="num">Accuracy</th><th data-key="total" class="num">Videos</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr{{if .Baseline}} class="baseline"{{end}} data-system="{{.System}}" data-accuracy="{{.AccuracyRaw}}" data-total="{{.Total}}" title="{{.Note}}">
<td class="system">{{.System}}</td><td class="num accuracy">{{.Accuracy}}</td><td class="num total">{{.TotalText}}</td>
</tr>
{{- end}}
</tbody>
</table>
<script>
document.querySelectorAll('#leaderboard th').forEach(function (th) {
  th.addEventListener('click', function () {
    var key = th.dataset.key;
    var asc = th.dataset.dir !== 'asc';
    th.dataset.dir = asc ? 'asc' : 'desc';
    var body = document.querySelector('#leaderboard tbody');
    var rows = Array.prototype.slice.call(body.rows);
    rows.sort(function (a, b) {
      var x = a.dataset[key], y = b.dataset[key];
      var c = key === 'system' ? x.localeCompare(y) : parseFloat(x) - parseFloat(y);
      return asc ? c : -c;
    });
    rows.forEach(function (r) { body.appendChild(r); });
  });
});
</script>
</body>
</html>
`))

type row struct {
	System      string
	Accuracy    string
	AccuracyRaw string
	Total       int
	TotalText   string
	Note        string
	Baseline    bool
}

// RenderHTML 把排行榜渲染为独立的 HTML 页面（表头可点击排序）。
func RenderHTML(title string, entries []Entry) ([]byte, error) {
	if title == "" {
		title = "DiceBench Leaderboard"
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{
			System:      e.System,
			Accuracy:    formatAccuracy(e.Accuracy),
			AccuracyRaw: strconv.FormatFloat(e.Accuracy, 'f', 2, 64),
			Total:       e.Total,
			TotalText:   totalText(e),
			Note:        e.Note,
			Baseline:    e.System == BaselineName,
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, struct {
		Title string
		Rows  []row
	}{title, rows}); err != nil {
		return nil, fmt.Errorf("render leaderboard: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTable 以终端表格输出排行榜。
func RenderTable(w io.Writer, entries []Entry) {
	data := make([][]string, 0, len(entries))
	for i, e := range entries {
		data = append(data, []string{strconv.Itoa(i + 1), e.System, formatAccuracy(e.Accuracy), totalText(e)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "SYSTEM", "ACCURACY", "VIDEOS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func formatAccuracy(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func totalText(e Entry) string {
	if e.Total <= 0 {
		return "-"
	}
	return strconv.Itoa(e.Total)
}
