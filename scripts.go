package livepager

import (
	"encoding/json"
	"fmt"
)

// bindingName is the CDP binding the in-page watchers call on every
// potential size change.
const bindingName = "__livepagerNotify"

// installScript attaches a MutationObserver (subtree child list, attributes,
// character data) and a ResizeObserver to the container and funnels both into
// the binding. Mutations that only touch the break-line overlay are ignored.
const installScript = `(function (sel, binding, cls) {
  const el = document.querySelector(sel);
  if (!el) return false;
  if (window.__livepager) window.__livepager.disconnect();
  if (getComputedStyle(el).position === "static") el.style.position = "relative";
  if (!document.getElementById("livepager-print")) {
    const st = document.createElement("style");
    st.id = "livepager-print";
    st.textContent = "@media print { ." + cls + " { display: none !important; } }";
    document.head.appendChild(st);
  }
  const isOverlay = (n) => n.nodeType === 1 && n.classList.contains(cls);
  const inOverlay = (n) => {
    for (; n; n = n.parentNode) if (isOverlay(n)) return true;
    return false;
  };
  const relevant = (r) => {
    if (inOverlay(r.target)) return false;
    if (r.type !== "childList") return true;
    const nodes = [...r.addedNodes, ...r.removedNodes];
    return nodes.length === 0 || !nodes.every(isOverlay);
  };
  const notify = () => { if (typeof window[binding] === "function") window[binding](""); };
  const mo = new MutationObserver((records) => { if (records.some(relevant)) notify(); });
  mo.observe(el, { childList: true, attributes: true, characterData: true, subtree: true });
  const ro = new ResizeObserver(notify);
  ro.observe(el);
  window.__livepager = {
    disconnect() { mo.disconnect(); ro.disconnect(); delete window.__livepager; },
  };
  return true;
})(%s, %s, %s)`

const uninstallScript = `(function () {
  if (window.__livepager) window.__livepager.disconnect();
  return true;
})()`

// measureScript resolves with the container's clientHeight read inside an
// animation frame, so the value reflects settled layout. The timeout covers
// tabs where frames are throttled.
const measureScript = `new Promise((resolve) => {
  const read = () => {
    const el = document.querySelector(%s);
    resolve(el ? el.clientHeight : 0);
  };
  const t = setTimeout(read, 250);
  requestAnimationFrame(() => { clearTimeout(t); read(); });
})`

const mountScript = `(function (sel, cls, markup) {
  const el = document.querySelector(sel);
  if (!el) return false;
  const old = el.querySelector(":scope > ." + cls);
  if (old) old.remove();
  el.insertAdjacentHTML("beforeend", markup);
  return true;
})(%s, %s, %s)`

// setContentScript replaces the container's content, keeping the mounted
// overlay in place.
const setContentScript = `(function (sel, cls, markup) {
  const el = document.querySelector(sel);
  if (!el) return false;
  const overlay = el.querySelector(":scope > ." + cls);
  el.innerHTML = markup;
  if (overlay) el.appendChild(overlay);
  return true;
})(%s, %s, %s)`

const bodyHeightScript = `Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`

// script fills a template with JSON-encoded arguments.
func script(tmpl string, args ...string) string {
	quoted := make([]any, len(args))
	for i, a := range args {
		b, _ := json.Marshal(a)
		quoted[i] = string(b)
	}
	return fmt.Sprintf(tmpl, quoted...)
}
