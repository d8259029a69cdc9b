// Package templates renders the HTML pages served by the web package.
package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// UploadPageData parameterizes the upload form.
type UploadPageData struct {
	Title  string
	Action string // form target, the upload endpoint
	MaxMB  int64
}

// UploadPage renders a standalone page with a ZIP file input that posts to
// the upload endpoint and prints the JSON response.
func UploadPage(data UploadPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, uploadHead+
			"<title>"+templ.EscapeString(data.Title)+"</title>"+
			uploadStyle+
			"</head><body><main>"+
			"<h1>"+templ.EscapeString(data.Title)+"</h1>"+
			"<p>Upload a ZIP archive with company ESG scores, news sentiment CSV files and JSON company reports. "+
			"Maximum size "+strconv.FormatInt(data.MaxMB, 10)+" MB.</p>"+
			`<form id="upload-form" method="post" enctype="multipart/form-data" action="`+templ.EscapeString(data.Action)+`">`+
			`<input type="file" name="file" accept=".zip,application/zip" required>`+
			`<button type="submit">Upload</button>`+
			`</form>`+
			`<pre id="upload-result" aria-live="polite"></pre>`+
			uploadScript+
			"</main></body></html>")
		return err
	})
}

const uploadHead = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`

const uploadStyle = `<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 40rem; color: #1f2933; }
form { display: flex; gap: 1rem; align-items: center; margin: 1.5rem 0; }
pre { background: #f5f7fa; padding: 1rem; border-radius: 4px; min-height: 3rem; white-space: pre-wrap; }
</style>`

const uploadScript = `<script>
document.getElementById("upload-form").addEventListener("submit", async (event) => {
  event.preventDefault();
  const form = event.target;
  const out = document.getElementById("upload-result");
  out.textContent = "Uploading...";
  try {
    const resp = await fetch(form.action, { method: "POST", body: new FormData(form) });
    out.textContent = JSON.stringify(await resp.json(), null, 2);
  } catch (err) {
    out.textContent = "Upload failed: " + err;
  }
});
</script>`
