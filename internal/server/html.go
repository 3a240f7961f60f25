package server

// indexHTML is the minimal built-in dashboard. It subscribes to /ws
// and renders the annotated stream, the smoothed inventory, and the
// pipeline stats without any external assets.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Poke Bowl Inventory Monitor</title>
<style>
  body { font-family: sans-serif; background: #16161a; color: #e8e8e8; margin: 0; padding: 1rem; }
  h1 { font-size: 1.2rem; }
  #layout { display: flex; gap: 1rem; flex-wrap: wrap; }
  #frame { max-width: 960px; width: 100%; background: #000; }
  table { border-collapse: collapse; min-width: 260px; }
  td, th { border-bottom: 1px solid #333; padding: 4px 10px; text-align: left; }
  #stats { color: #9a9a9a; font-size: 0.85rem; margin-top: 0.5rem; }
</style>
</head>
<body>
<h1>Poke Bowl Inventory Monitor</h1>
<div id="layout">
  <div>
    <img id="frame" alt="camera stream">
    <div id="stats">connecting...</div>
  </div>
  <table>
    <thead><tr><th>Item</th><th>Count</th><th>Conf</th></tr></thead>
    <tbody id="inventory"></tbody>
  </table>
</div>
<script>
const proto = location.protocol === "https:" ? "wss" : "ws";
const ws = new WebSocket(proto + "://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "frame") {
    document.getElementById("frame").src = "data:image/jpeg;base64," + msg.data;
  } else if (msg.type === "inventory") {
    const rows = (msg.data.items || []).map(it =>
      "<tr><td>" + it.class_name + "</td><td>" + it.count + "</td><td>" +
      it.confidence.toFixed(2) + "</td></tr>").join("");
    document.getElementById("inventory").innerHTML = rows;
  } else if (msg.type === "stats") {
    const s = msg.data;
    document.getElementById("stats").textContent =
      s.fps.toFixed(1) + " fps | inference " + s.inference_time.toFixed(1) +
      " ms | " + s.total_items + " items | " + s.active_connections + " viewers";
  }
};
ws.onclose = () => {
  document.getElementById("stats").textContent = "disconnected";
};
</script>
</body>
</html>
`
