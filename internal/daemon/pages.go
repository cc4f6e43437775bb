package daemon

import "net/http"

// The block/nudge and prompt pages are deliberately tiny: static HTML
// with client-side scripts that read their own query string and talk
// back through /api/message. Anything under this origin is excluded
// from tracking.

const blockedHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>tabwarden</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 34em; margin: 10vh auto; padding: 0 1em; color: #1f2430; }
h1 { font-size: 1.4em; }
.site { font-weight: 600; }
button { margin-right: .5em; padding: .5em 1em; cursor: pointer; }
.hidden { display: none; }
#actionStatus { margin-top: 1em; }
</style>
</head>
<body>
<h1 id="titleText"></h1>
<p><span class="site" id="site"></span></p>
<p id="messageText"></p>
<p id="remaining"></p>
<div id="nudgeActions" class="hidden">
  <button id="takeBreakBtn">Take a 5-minute break</button>
  <button id="snoozeBtn">Snooze</button>
  <button id="closeTabBtn">Close tab</button>
</div>
<p id="actionStatus"></p>
<script>
const search = new URLSearchParams(window.location.search);
const mode = search.get("mode") || "cooldown";
const stage = Number(search.get("stage") || 0);
const site = search.get("site") || search.get("domain") || "unknown";
const until = Number(search.get("until") || 0);
const returnUrl = search.get("returnUrl");
const sourceTabId = search.get("sourceTabId") || "";

function setStatus(message, isError) {
  const el = document.getElementById("actionStatus");
  el.textContent = message;
  el.style.color = isError ? "#9c2a17" : "#256d5a";
}

function isAllowedReturnUrl(candidateUrl) {
  try {
    const parsed = new URL(candidateUrl);
    if (parsed.protocol !== "http:" && parsed.protocol !== "https:") return false;
    const host = parsed.hostname.toLowerCase();
    const cleanSite = String(site || "").toLowerCase();
    return host === cleanSite || host.endsWith("." + cleanSite);
  } catch (_error) {
    return false;
  }
}

function formatRemaining(ms) {
  if (ms <= 0) return "Cooldown finished. Redirecting...";
  const sec = Math.ceil(ms / 1000);
  return "Try again in " + Math.floor(sec / 60) + "m " + (sec % 60) + "s";
}

async function sendStage2Action(action) {
  const res = await fetch("/api/message", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({ type: "stage2_nudge_action", action, domain: site, sourceTabId })
  });
  const response = await res.json();
  if (!response.ok) {
    setStatus(response.error || "Action failed.", true);
    return;
  }
  const data = response.data || {};
  setStatus(data.message || "Action completed.");
}

function renderStage2Nudge() {
  document.getElementById("titleText").textContent = "Take a Break";
  document.getElementById("messageText").textContent =
    "You've been browsing for a while. What would you like to do now?";
  document.getElementById("nudgeActions").classList.remove("hidden");
  document.getElementById("takeBreakBtn").addEventListener("click", () => sendStage2Action("break_5"));
  document.getElementById("snoozeBtn").addEventListener("click", () => sendStage2Action("snooze"));
  document.getElementById("closeTabBtn").addEventListener("click", () => sendStage2Action("close_tab"));
}

function renderCooldown() {
  document.getElementById("titleText").textContent = "Cooldown Active";
  document.getElementById("messageText").textContent =
    "This domain is temporarily blocked to interrupt excessive browsing.";
  const remainingEl = document.getElementById("remaining");
  const fallbackUrl = "https://" + site;
  const safeReturnUrl = isAllowedReturnUrl(returnUrl) ? returnUrl : fallbackUrl;

  if (!Number.isFinite(until) || until <= 0) {
    remainingEl.textContent = "No cooldown timestamp found. Redirecting...";
    window.location.href = safeReturnUrl;
    return;
  }

  let redirected = false;
  const timer = setInterval(() => {
    const left = until - Date.now();
    remainingEl.textContent = formatRemaining(left);
    if (left <= 0 && !redirected) {
      redirected = true;
      clearInterval(timer);
      window.location.href = safeReturnUrl;
    }
  }, 1000);
}

document.getElementById("site").textContent = site;
if (mode === "stage_nudge" && stage === 2) {
  renderStage2Nudge();
} else {
  renderCooldown();
}
</script>
</body>
</html>
`

const promptHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Quick check-in</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 34em; margin: 10vh auto; padding: 0 1em; color: #1f2430; }
h1 { font-size: 1.3em; }
fieldset { border: none; padding: 0; margin: 1.2em 0; }
button { margin-right: .5em; padding: .5em 1em; cursor: pointer; }
#status { margin-top: 1em; }
</style>
</head>
<body>
<h1>Quick check-in</h1>
<p>That session just ended. Two quick questions:</p>
<fieldset>
  <p>Did you browse longer than you intended?</p>
  <label><input type="radio" name="q1" value="yes"> Yes</label>
  <label><input type="radio" name="q1" value="no"> No</label>
</fieldset>
<fieldset>
  <p>How hard was it to stop? (1 = easy, 5 = very hard)</p>
  <label><input type="radio" name="q2" value="1"> 1</label>
  <label><input type="radio" name="q2" value="2"> 2</label>
  <label><input type="radio" name="q2" value="3"> 3</label>
  <label><input type="radio" name="q2" value="4"> 4</label>
  <label><input type="radio" name="q2" value="5"> 5</label>
</fieldset>
<button id="saveBtn">Save</button>
<button id="skipBtn">Skip</button>
<p id="status"></p>
<script>
const sessionId = new URLSearchParams(window.location.search).get("sessionId") || "";

function picked(name) {
  const el = document.querySelector('input[name="' + name + '"]:checked');
  return el ? el.value : null;
}

async function save(q1, q2) {
  const res = await fetch("/api/message", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({
      type: "save_prompt_answers",
      sessionId,
      q1LongerThanIntended: q1,
      q2HardToStop: q2
    })
  });
  const response = await res.json();
  const status = document.getElementById("status");
  if (!response.ok) {
    status.textContent = response.error || "Could not save.";
    return;
  }
  status.textContent = "Saved. You can close this tab.";
}

document.getElementById("saveBtn").addEventListener("click", () => {
  const q1 = picked("q1");
  const q2raw = picked("q2");
  if (!q1 && !q2raw) {
    document.getElementById("status").textContent = "Pick an answer or skip.";
    return;
  }
  save(q1 || "skip", q2raw ? Number(q2raw) : null);
});

document.getElementById("skipBtn").addEventListener("click", () => save("skip", null));
</script>
</body>
</html>
`

func serveBlocked(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(blockedHTML))
}

func servePrompt(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(promptHTML))
}
