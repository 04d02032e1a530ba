package web

import "html/template"

// The page carries no server-rendered state. Indicators stay grey with a
// "..." placeholder until the first poll of /api/buttons completes.
var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

const dashboardHTML = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; text-align: center; margin-top: 2rem; }
.btn-st { display: inline-block; margin: 1rem; padding: 1rem; border-radius: 0.5rem; width: 20rem; color: white; background-color: grey; }
h2 { margin-top: 0; }
</style>
</head>
<body>
<div id="btn-a" class="btn-st">
<h2>{{.ButtonA}}</h2>
<p id="st-a">...</p>
</div>
<div id="btn-b" class="btn-st">
<h2>{{.ButtonB}}</h2>
<p id="st-b">...</p>
</div>
<script>
function updateButtons() {
  fetch('/api/buttons')
    .then(response => response.json())
    .then(data => {
      document.getElementById('btn-a').style.backgroundColor = data.btnA.col;
      document.getElementById('st-a').textContent = data.btnA.st;
      document.getElementById('btn-b').style.backgroundColor = data.btnB.col;
      document.getElementById('st-b').textContent = data.btnB.st;
    });
}
updateButtons();
setInterval(updateButtons, 1000);
</script>
</body>
</html>
`
