package email

import (
	"fmt"
	"strings"
	"time"
)

const (
	criticalBanner = "A 6th semester exam form notice has been published. Check the details below and submit before the deadline."
	regularBanner  = "New notices have been published."
)

func (s *Sender) formatDigestBody(d *digest) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 700px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".banner { padding: 16px 20px; border-radius: 8px; margin-bottom: 24px; font-weight: 600; }\n")
	b.WriteString(".banner.critical { background: #fdecea; color: #b71c1c; border-left: 5px solid #d32f2f; }\n")
	b.WriteString(".banner.regular { background: #e8f1fb; color: #1a4f8b; border-left: 5px solid #2b78c5; }\n")
	b.WriteString(".summary { color: #7f8c8d; font-size: 0.9em; margin-bottom: 16px; }\n")
	b.WriteString(".notice { padding: 16px 20px; margin-bottom: 16px; border-radius: 8px; border: 1px solid #e0e0e0; }\n")
	b.WriteString(".notice.critical { border: 2px solid #d32f2f; background: #fff8f7; }\n")
	b.WriteString(".badge { display: inline-block; font-size: 0.75em; font-weight: 700; color: #fff; background: #d32f2f; padding: 2px 8px; border-radius: 4px; margin-bottom: 6px; }\n")
	b.WriteString(".title { font-size: 1.1em; font-weight: 600; margin: 0 0 6px 0; }\n")
	b.WriteString(".date { color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a.download { display: inline-block; margin-top: 10px; color: #2b78c5; text-decoration: none; font-weight: 600; }\n")
	b.WriteString(".notice.critical a.download { color: #d32f2f; }\n")
	b.WriteString("a.download:hover { text-decoration: underline; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.85em; color: #7f8c8d; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".notice { border-color: #444; }\n")
	b.WriteString(".notice.critical { background: #2a1615; }\n")
	b.WriteString(".date, .summary, .footer { color: #a0a0a0; }\n")
	b.WriteString(".footer { border-top-color: #444; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	if d.criticalCount > 0 {
		b.WriteString(fmt.Sprintf("<div class=\"banner critical\">%s</div>\n", criticalBanner))
	} else {
		b.WriteString(fmt.Sprintf("<div class=\"banner regular\">%s</div>\n", regularBanner))
	}

	noun := "notices"
	if len(d.notices) == 1 {
		noun = "notice"
	}
	b.WriteString(fmt.Sprintf("<div class=\"summary\">%d new %s</div>\n", len(d.notices), noun))

	for i, n := range d.notices {
		if d.critical[i] {
			b.WriteString("<div class=\"notice critical\">\n")
			b.WriteString("<span class=\"badge\">IMPORTANT</span>\n")
		} else {
			b.WriteString("<div class=\"notice\">\n")
		}
		b.WriteString(fmt.Sprintf("<p class=\"title\">%s</p>\n", escapeHTML(n.Title)))
		b.WriteString(fmt.Sprintf("<span class=\"date\">%s</span>\n", escapeHTML(formatDate(n.Date, n.Published()))))
		b.WriteString(fmt.Sprintf("<br>\n<a class=\"download\" href=\"%s\">Download notice</a>\n", escapeHTML(s.DownloadURL(n))))
		b.WriteString("</div>\n")
	}

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString(fmt.Sprintf("Sent %s by the notice notifier.\n", time.Now().UTC().Format("Jan 2, 2006 at 3:04 PM MST")))
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

// formatDate renders a parsed date, falling back to the raw source value.
func formatDate(raw string, t time.Time) string {
	if t.IsZero() {
		return raw
	}
	return t.Format("Jan 2, 2006 at 3:04 PM")
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
