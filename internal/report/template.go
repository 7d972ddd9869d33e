package report

// reportTemplate is the full standalone document. Data attributes on each
// card feed the client-side sort and filter controls.
const reportTemplate = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Тендеры: {{.FilterName}}</title>
<style>
:root { --high:#2e7d32; --medium:#f9a825; --low:#9e9e9e; --bg:#f5f6f8; --card:#fff; }
* { box-sizing:border-box; }
body { margin:0; font-family:-apple-system,"Segoe UI",Roboto,Arial,sans-serif; background:var(--bg); color:#1c1c1e; }
.wrap { max-width:960px; margin:0 auto; padding:24px 16px; }
header { background:#1a237e; color:#fff; padding:24px 16px; }
header h1 { margin:0 0 4px; font-size:22px; }
header .meta { opacity:.8; font-size:14px; }
.summary { display:flex; gap:12px; margin:16px 0; flex-wrap:wrap; }
.stat { background:var(--card); border-radius:8px; padding:12px 18px; box-shadow:0 1px 3px rgba(0,0,0,.08); }
.stat b { display:block; font-size:22px; }
.stat.high b { color:var(--high); }
.stat.medium b { color:var(--medium); }
.controls { display:flex; gap:8px; margin:12px 0 20px; flex-wrap:wrap; }
.controls select, .controls input { padding:8px 10px; border:1px solid #ccc; border-radius:6px; font-size:14px; background:#fff; }
.card { background:var(--card); border-radius:10px; padding:16px; margin-bottom:12px; box-shadow:0 1px 3px rgba(0,0,0,.08); }
.card h2 { margin:0 0 8px; font-size:16px; }
.card h2 a { color:#1a237e; text-decoration:none; }
.card h2 a:hover { text-decoration:underline; }
.row { display:flex; gap:16px; flex-wrap:wrap; font-size:14px; color:#444; margin-bottom:6px; }
.badge { display:inline-block; min-width:44px; text-align:center; border-radius:14px; padding:3px 10px; color:#fff; font-weight:600; font-size:13px; }
.badge.high { background:var(--high); }
.badge.medium { background:var(--medium); }
.badge.low { background:var(--low); }
.reasons { font-size:13px; color:#666; }
.flags { font-size:13px; color:#c62828; margin-top:6px; }
.ai { font-size:13px; color:#00695c; margin-top:6px; }
.empty { text-align:center; color:#888; padding:40px 0; display:none; }
</style>
</head>
<body>
<header>
  <div class="wrap">
    <h1>🎯 {{.FilterName}}</h1>
    <div class="meta">Ключевые слова: {{.Keywords}} · Сформирован {{.GeneratedAt}}</div>
  </div>
</header>
<div class="wrap">
  <div class="summary">
    <div class="stat"><b>{{.Total}}</b>всего</div>
    <div class="stat high"><b>{{.HighCount}}</b>сильных (80+)</div>
    <div class="stat medium"><b>{{.MediumCount}}</b>средних (60–79)</div>
  </div>
  <div class="controls">
    <select id="sort">
      <option value="score">По релевантности</option>
      <option value="price-desc">Цена: сначала дорогие</option>
      <option value="price-asc">Цена: сначала дешёвые</option>
      <option value="deadline">По сроку подачи</option>
    </select>
    <select id="region">
      <option value="">Все регионы</option>
      {{range .Regions}}<option value="{{.}}">{{.}}</option>{{end}}
    </select>
    <input id="q" type="search" placeholder="Поиск по названию...">
  </div>
  <div id="cards">
  {{range .Cards}}
    <div class="card" data-score="{{.Score}}" data-price="{{.PriceValue}}" data-deadline="{{.DeadlineTS}}" data-region="{{.Region}}" data-name="{{lower .Name}}">
      <h2><a href="{{.URL}}" target="_blank" rel="noopener">{{.Name}}</a></h2>
      <div class="row">
        <span class="badge {{.ScoreClass}}">{{.Score}}</span>
        <span>💰 {{.Price}}</span>
        <span>⏰ {{.Deadline}}</span>
        {{if .Region}}<span>📍 {{.Region}}</span>{{end}}
      </div>
      <div class="row">
        {{if .Customer}}<span>🏢 {{.Customer}}</span>{{end}}
        <span>№ {{.Number}}</span>
        {{if .Published}}<span>Опубликован {{.Published}}</span>{{end}}
      </div>
      {{if .Reasons}}<div class="reasons">{{range $i, $r := .Reasons}}{{if $i}} · {{end}}{{$r}}{{end}}</div>{{end}}
      {{if .AILine}}<div class="ai">🤖 {{.AILine}}</div>{{end}}
      {{if .RedFlags}}<div class="flags">🚩 {{range $i, $f := .RedFlags}}{{if $i}} | {{end}}{{$f}}{{end}}</div>{{end}}
    </div>
  {{end}}
  </div>
  <div class="empty" id="empty">Ничего не найдено</div>
</div>
<script>
(function(){
  var cards = document.getElementById('cards');
  var empty = document.getElementById('empty');
  var sort = document.getElementById('sort');
  var region = document.getElementById('region');
  var q = document.getElementById('q');

  function apply(){
    var items = Array.prototype.slice.call(cards.children);
    var mode = sort.value, reg = region.value, needle = q.value.toLowerCase();
    items.sort(function(a,b){
      switch(mode){
        case 'price-desc': return (+b.dataset.price)-(+a.dataset.price);
        case 'price-asc':  return (+a.dataset.price)-(+b.dataset.price);
        case 'deadline':
          var da = +a.dataset.deadline || Infinity, db = +b.dataset.deadline || Infinity;
          return da-db;
        default: return (+b.dataset.score)-(+a.dataset.score);
      }
    });
    var visible = 0;
    items.forEach(function(el){
      var show = (!reg || el.dataset.region === reg) &&
                 (!needle || el.dataset.name.indexOf(needle) !== -1);
      el.style.display = show ? '' : 'none';
      if (show) visible++;
      cards.appendChild(el);
    });
    empty.style.display = visible ? 'none' : 'block';
  }

  sort.addEventListener('change', apply);
  region.addEventListener('change', apply);
  q.addEventListener('input', apply);
})();
</script>
</body>
</html>
`
